package validation

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	CourseID string `json:"course_id" binding:"required,notblank" validate:"required,notblank"`
	Kind     string `json:"kind" validate:"oneof=Justified Unjustified"`
	Shout    string `json:"shout" validate:"omitempty,capital"`
}

var capitalRule = Rule{
	Tag:     "capital",
	Fn:      func(fl validator.FieldLevel) bool { s := fl.Field().String(); return s != "" && s[0] >= 'A' && s[0] <= 'Z' },
	Message: "{0} must start with an upper-case letter",
}

func TestRegisterUsesJSONNamesAndCustomMessages(t *testing.T) {
	v := validator.New()
	trans, err := Register(v, capitalRule)
	require.NoError(t, err)

	err = v.Struct(sample{CourseID: "   ", Kind: "Late", Shout: "hey"})
	require.Error(t, err)

	errs := err.(validator.ValidationErrors)
	got := map[string]string{}
	for _, fe := range errs {
		got[fe.Field()] = fe.Translate(trans)
	}
	assert.Equal(t, "course_id must not be blank", got["course_id"])
	assert.Contains(t, got["kind"], "kind must be one of")
	assert.Equal(t, "shout must start with an upper-case letter", got["shout"])
}

func TestInstallOnGinEngine(t *testing.T) {
	require.NoError(t, Install(capitalRule))
	assert.Equal(t, "invalid json or missing required fields", Message(assert.AnError))
}
