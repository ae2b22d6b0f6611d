package sessions

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"ROLLCALL-backend/internal/platform/validation"
)

const (
	CodeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

type CodeGenerator interface {
	Generate() (string, error)
}

// randomCodes は [A-Z0-9] から一様に6文字引く
type randomCodes struct{}

func RandomCodes() CodeGenerator { return randomCodes{} }

func (randomCodes) Generate() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode: 全角英数字は NFKC で半角に寄せ、大文字化する
func NormalizeCode(raw string) string {
	return strings.ToUpper(norm.NFKC.String(strings.TrimSpace(raw)))
}

func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// CodeRule は binding タグ `sessioncode`
var CodeRule = validation.Rule{
	Tag: "sessioncode",
	Fn: func(fl validator.FieldLevel) bool {
		return ValidCode(NormalizeCode(fl.Field().String()))
	},
	Message: "{0} must be a 6-character alphanumeric code",
}
