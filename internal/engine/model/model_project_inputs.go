// Copyright 2025 Insightra Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"time"

	"gorm.io/datatypes"
)

// ProjectInput is one immutable version of a project's source material.
// New uploads append a higher version; runs pin the version they were
// started against.
type ProjectInput struct {
	ID         int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ProjectID  string         `gorm:"column:project_id;type:VARCHAR(64);index:idx_project_version" json:"project_id"`
	Version    int64          `gorm:"column:version;type:BIGINT;index:idx_project_version" json:"version"`
	Payload    datatypes.JSON `gorm:"column:payload;type:JSON" json:"payload"`
	CreateTime time.Time      `gorm:"column:create_time;type:DATETIME" json:"create_time"`
}

// TableName returns the backing table name.
func (ProjectInput) TableName() string {
	return "i_project_inputs"
}
