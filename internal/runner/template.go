package runner

import (
	"errors"
	"fmt"
	"os"
	"reflect"
)

// ExpandTemplates expands ${VAR} references in place in the struct pointed to
// by in. Only string and *string fields carrying a `template` tag are expanded;
// `template:"-"` opts a field out. Nested structs and non-nil struct pointers
// are walked whether tagged or not. Unexported fields are ignored.
func ExpandTemplates[T any](in *T, variables map[string]string) error {
	if in == nil {
		return nil
	}
	v := reflect.ValueOf(in).Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("ExpandTemplates expects *struct; got *%s", v.Type())
	}
	return expandStruct(v, variables)
}

func expandStruct(v reflect.Value, variables map[string]string) error {
	var errs error
	typ := v.Type()

	for i := range typ.NumField() {
		sf := typ.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag, tagged := sf.Tag.Lookup("template")
		tagged = tagged && tag != "-"
		field := v.Field(i)

		switch field.Kind() {
		case reflect.String:
			if tagged {
				errs = errors.Join(errs, expandString(field, sf.Name, variables))
			}
		case reflect.Struct:
			errs = errors.Join(errs, expandStruct(field, variables))
		case reflect.Pointer:
			if field.IsNil() {
				continue
			}
			switch elem := field.Elem(); elem.Kind() {
			case reflect.Struct:
				errs = errors.Join(errs, expandStruct(elem, variables))
			case reflect.String:
				if !tagged {
					continue
				}
				// The pointee may be shared with the caller.
				expanded := reflect.New(elem.Type())
				expanded.Elem().SetString(elem.String())
				if err := expandString(expanded.Elem(), sf.Name, variables); err != nil {
					errs = errors.Join(errs, err)
					continue
				}
				field.Set(expanded)
			}
		}
	}

	return errs
}

func expandString(field reflect.Value, name string, variables map[string]string) error {
	expanded, err := Expand(field.String(), variables)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	field.SetString(expanded)
	return nil
}

// Expand replaces ${VAR} references in value. Every referenced variable must
// be present in variables.
func Expand(value string, variables map[string]string) (string, error) {
	var errs error

	result := os.Expand(value, func(key string) string {
		if val, ok := variables[key]; ok {
			return val
		}
		errs = errors.Join(errs, fmt.Errorf("environment variable %q is not in the allowed list", key))
		return ""
	})

	if errs != nil {
		return "", errs
	}

	return result, nil
}
