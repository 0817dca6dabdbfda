package configtest

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/multierr"
)

var snakeCase = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)

type tagChecker struct {
	visited map[reflect.Type]bool
	errs    error
}

func (c *tagChecker) fail(t reflect.Type, field, format string, args ...any) {
	c.errs = multierr.Append(c.errs, fmt.Errorf("%s.%s: "+format, append([]any{t.Name(), field}, args...)...))
}

func (c *tagChecker) walk(t reflect.Type) {
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice || t.Kind() == reflect.Map || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || c.visited[t] {
		return
	}
	c.visited[t] = true

	for _, field := range reflect.VisibleFields(t) {
		if !field.IsExported() || field.Anonymous {
			continue
		}
		tag, ok := field.Tag.Lookup("yaml")
		if !ok {
			c.fail(t, field.Name, "no yaml tag")
			continue
		}
		opts := strings.Split(tag, ",")
		if opts[0] == "-" {
			continue
		}
		if !snakeCase.MatchString(opts[0]) {
			c.fail(t, field.Name, "yaml name %q is not snake_case", opts[0])
		}
		// booleans default to false so writing them out is harmless
		if field.Type.Kind() != reflect.Bool && field.Tag.Get("config") != "allowempty" &&
			!slices.Contains(opts[1:], "omitempty") && !slices.Contains(opts[1:], "inline") {
			c.fail(t, field.Name, "missing omitempty")
		}
		c.walk(field.Type)
	}
}

// CheckYAMLTags reports config fields whose yaml tags would break layering a
// partial YAML body over defaults: untagged fields, names that are not
// snake_case, and non-boolean fields without omitempty.
func CheckYAMLTags(config any) error {
	c := &tagChecker{visited: map[reflect.Type]bool{}}
	c.walk(reflect.TypeOf(config))
	return c.errs
}
