package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type query struct {
	Status  string `form:"status" validate:"omitempty,oneof=pending confirmed"`
	From    string `form:"from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	PerPage int    `json:"per_page" validate:"omitempty,lte=100"`
}

func TestValidateUsesTagNames(t *testing.T) {
	assert.Nil(t, Validate(query{Status: "pending", From: "2030-05-14T10:00:00Z", PerPage: 10}))

	errs := Validate(query{Status: "lost", From: "yesterday", PerPage: 500})
	assert.Equal(t, map[string]string{
		"status":   "oneof",
		"from":     "datetime",
		"per_page": "lte",
	}, errs)
}
