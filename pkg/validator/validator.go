package validator

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/clinic-desk/internal/model"
)

// TagName is shared with gin so request structs carry one set of rules.
const TagName = "binding"

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9\- ]{6,18}[0-9]$`)

var (
	once     sync.Once
	instance *validator.Validate
)

// Get returns the process-wide validator with the custom rules registered.
func Get() *validator.Validate {
	once.Do(func() {
		v := validator.New()
		v.SetTagName(TagName)
		v.RegisterTagNameFunc(jsonName)
		v.RegisterCustomTypeFunc(dateValue, model.Date{})
		mustRegister(v, "past", validatePast)
		mustRegister(v, "phone", validatePhone)
		mustRegister(v, "payment_method", validatePaymentMethod)
		mustRegister(v, "queue_action", validateQueueAction)
		instance = v
	})
	return instance
}

// Struct validates s against its binding tags.
func Struct(s interface{}) error {
	return Get().Struct(s)
}

// InstallGin makes gin's ShouldBind* use the same validator instance.
func InstallGin() {
	binding.Validator = &ginValidator{v: Get()}
}

// FieldError is a client-facing description of one failed rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// Describe flattens validator errors into FieldErrors. It returns nil for
// errors that did not come from validation.
func Describe(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

func jsonName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

// dateValue lets "required" see an unset Date as empty.
func dateValue(field reflect.Value) interface{} {
	d, ok := field.Interface().(model.Date)
	if !ok || d.IsZero() {
		return nil
	}
	return d.Time
}

func validatePast(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	return ok && t.Before(time.Now())
}

func validatePhone(fl validator.FieldLevel) bool {
	return phonePattern.MatchString(fl.Field().String())
}

func validatePaymentMethod(fl validator.FieldLevel) bool {
	return model.PaymentMethod(fl.Field().String()).Valid()
}

func validateQueueAction(fl validator.FieldLevel) bool {
	return model.QueueAction(fl.Field().String()).Valid()
}

// ginValidator adapts validator/v10 to gin's StructValidator.
type ginValidator struct {
	v *validator.Validate
}

func (g *ginValidator) ValidateStruct(obj interface{}) error {
	if obj == nil {
		return nil
	}
	val := reflect.ValueOf(obj)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil
	}
	return g.v.Struct(obj)
}

func (g *ginValidator) Engine() interface{} {
	return g.v
}
