package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Rule は独自バリデーションタグ
type Rule struct {
	Tag     string
	Fn      validator.Func
	Message string // {0} にフィールド名が入る
}

const notBlankTag = "notblank"

var notBlank = Rule{
	Tag:     notBlankTag,
	Fn:      func(fl validator.FieldLevel) bool { return strings.TrimSpace(fl.Field().String()) != "" },
	Message: "{0} must not be blank",
}

var (
	mu         sync.Mutex
	translator ut.Translator
)

// Install は gin の binding エンジンに json 名とカスタムタグ・英語メッセージを登録する
func Install(rules ...Rule) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	trans, err := Register(v, rules...)
	if err != nil {
		return err
	}
	mu.Lock()
	translator = trans
	mu.Unlock()
	return nil
}

// Register は任意の validator インスタンスに設定を施す
func Register(v *validator.Validate, rules ...Rule) (ut.Translator, error) {
	locale := en.New()
	trans, _ := ut.New(locale, locale).GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, err
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"json", "form", "uri"} {
			name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	for _, r := range append([]Rule{notBlank}, rules...) {
		if err := v.RegisterValidation(r.Tag, r.Fn); err != nil {
			return nil, fmt.Errorf("register %s: %w", r.Tag, err)
		}
		if r.Message == "" {
			continue
		}
		tag, text := r.Tag, r.Message
		err := v.RegisterTranslation(tag, trans,
			func(t ut.Translator) error { return t.Add(tag, text, true) },
			func(t ut.Translator, fe validator.FieldError) string {
				s, _ := t.T(tag, fe.Field())
				return s
			},
		)
		if err != nil {
			return nil, fmt.Errorf("translate %s: %w", r.Tag, err)
		}
	}
	return trans, nil
}

// Message はバインドエラーを利用者向けの一文にする
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid json or missing required fields"
	}
	mu.Lock()
	trans := translator
	mu.Unlock()

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if trans != nil {
			parts = append(parts, fe.Translate(trans))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
