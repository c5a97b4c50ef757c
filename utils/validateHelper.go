package utils

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"

	"bitbucket.org/mmdatafocus/fir_backend/config"
)

var validate = validator.New()

// ValidateStruct runs go-playground tag validation and converts the first
// failure into a ValidationError so handlers map it to 400.
func ValidateStruct(obj interface{}) error {
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fe.Field(), Reason: "failed " + fe.Tag() + " validation"}
	}
	return err
}

// ValidateResourceId checks that a row with the given id exists.
func ValidateResourceId[T any](ctx context.Context, id interface{}) error {
	count, err := ResourceCountWhere[T](ctx, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}

// ResourceCountWhere counts records of T matching condition.
func ResourceCountWhere[T any](ctx context.Context, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&model).Where(condition, value...).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
