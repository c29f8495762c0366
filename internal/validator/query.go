package validator

import (
	"errors"
	"reflect"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// PageQuery holds the list endpoint's pagination parameters.
type PageQuery struct {
	Page  int `validate:"min=1" message:"Page must be a positive integer"`
	Limit int `validate:"min=1,max=100" message:"Limit must be between 1 and 100"`
}

// RecentQuery holds the recent endpoint's limit.
type RecentQuery struct {
	Limit int `validate:"min=1,max=50" message:"Limit must be between 1 and 50"`
}

// Query validates a query struct and returns one message per failing field.
// The message comes from the field's "message" tag when present.
func Query(q any) []string {
	err := validate.Struct(q)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}

	t := reflect.Indirect(reflect.ValueOf(q)).Type()
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fe.Error()
		if f, ok := t.FieldByName(fe.StructField()); ok {
			if m := f.Tag.Get("message"); m != "" {
				msg = m
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
