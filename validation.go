package otherwise

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const mediaPathPrefix = "/api/media/"

var (
	slugPattern      = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	mediaPathPattern = regexp.MustCompile(`^/api/media/[a-zA-Z0-9._-]+$`)
)

// issueMessages maps "field.tag" to the message shown next to the field.
var issueMessages = map[string]string{
	"title.required":       "Title is required.",
	"title.min":            "Title is required.",
	"slug.slug":            "Slug must be lowercase letters and numbers separated by hyphens.",
	"contentType.required": "Content type must be 'blog' or 'project'.",
	"contentType.oneof":    "Content type must be 'blog' or 'project'.",
	"content.required":     "Content cannot be empty.",
	"content.min":          "Content cannot be empty.",
	"date.required":        "Date is required.",
	"date.datetime":        "Date must be in YYYY-MM-DD format.",
	"image.mediapath":      "Image must be a /api/media/<file> path.",
	"status.oneof":         "Status must be 'draft' or 'published'.",
	"publishDate.datetime": "Publish date must be in YYYY-MM-DD format.",
	"tags.required":        "Tags cannot be empty.",
	"name.required":        "Name is required.",
	"email.required":       "Email is required.",
	"email.email":          "Invalid email address.",
	"message.required":     "Message is required.",
	"message.max":          "Message is too long.",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	// Empty is allowed: it means "no image".
	_ = v.RegisterValidation("mediapath", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || mediaPathPattern.MatchString(s)
	})
	return v
}

// echoValidator adapts validator to echo.Validator for c.Validate.
type echoValidator struct {
	v *validator.Validate
}

func (ev *echoValidator) Validate(i any) error {
	return ev.v.Struct(i)
}

// validationIssues converts a validator error into messages keyed by JSON
// field name. Element errors ("tags[0]") are reported under the slice field.
func validationIssues(err error) map[string][]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string][]string{"_": {err.Error()}}
	}
	issues := make(map[string][]string)
	for _, fe := range verrs {
		field := fe.Field()
		if i := strings.IndexByte(field, '['); i >= 0 {
			field = field[:i]
		}
		msg, ok := issueMessages[field+"."+fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("%s is invalid.", field)
		}
		if !containsString(issues[field], msg) {
			issues[field] = append(issues[field], msg)
		}
	}
	return issues
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// firstIssue returns one message for a 400 response body.
func firstIssue(issues map[string][]string, order ...string) string {
	for _, f := range order {
		if msgs := issues[f]; len(msgs) > 0 {
			return msgs[0]
		}
	}
	for _, msgs := range issues {
		if len(msgs) > 0 {
			return msgs[0]
		}
	}
	return "Invalid request."
}
