// Copyright 2025 Insightra Team
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

package repo

import (
	"context"
	"errors"
	"time"

	"github.com/insightrix/insightra/internal/engine/model"
	"github.com/insightrix/insightra/pkg/database"
	"gorm.io/gorm"
)

type IInputRepository interface {
	// Create appends a new input version for the project. The version is
	// assigned here, one above the current latest.
	Create(ctx context.Context, projectID string, payload []byte) (*model.ProjectInput, error)

	// GetLatestVersion returns the project's newest input, or nil when the
	// project has no inputs yet.
	GetLatestVersion(ctx context.Context, projectID string) (*model.ProjectInput, error)

	// GetVersion returns one pinned input version, or nil when absent.
	GetVersion(ctx context.Context, projectID string, version int64) (*model.ProjectInput, error)
}

type InputRepo struct {
	database.IDatabase
}

func NewInputRepo(db database.IDatabase) IInputRepository {
	return &InputRepo{IDatabase: db}
}

func (r *InputRepo) Create(ctx context.Context, projectID string, payload []byte) (*model.ProjectInput, error) {
	input := &model.ProjectInput{
		ProjectID:  projectID,
		Version:    1,
		Payload:    payload,
		CreateTime: time.Now(),
	}

	err := r.Database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest model.ProjectInput
		err := tx.Where("project_id = ?", projectID).
			Order("version DESC").
			First(&latest).Error
		if err == nil {
			input.Version = latest.Version + 1
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(input).Error
	})
	if err != nil {
		return nil, err
	}
	return input, nil
}

func (r *InputRepo) GetVersion(ctx context.Context, projectID string, version int64) (*model.ProjectInput, error) {
	var input model.ProjectInput
	err := r.Database().WithContext(ctx).
		Where("project_id = ? AND version = ?", projectID, version).
		First(&input).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &input, nil
}

func (r *InputRepo) GetLatestVersion(ctx context.Context, projectID string) (*model.ProjectInput, error) {
	var input model.ProjectInput
	err := r.Database().WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("version DESC").
		First(&input).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &input, nil
}
