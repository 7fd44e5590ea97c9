package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks field ranges and the relations between fields.
func (c *Config) Validate() error {
	if err := validatorInstance().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (%v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	g := c.Gestures
	if g.BlinkRelease != 0 && g.BlinkRelease < g.BlinkThreshold {
		return fmt.Errorf("gestures.blink_release (%.3f) must not be below blink_threshold (%.3f)", g.BlinkRelease, g.BlinkThreshold)
	}
	if g.MouthRelease != 0 && g.MouthRelease > g.MouthOpenThreshold {
		return fmt.Errorf("gestures.mouth_release (%.3f) must not exceed mouth_open_threshold (%.3f)", g.MouthRelease, g.MouthOpenThreshold)
	}
	if g.BrowRelease != 0 && g.BrowRelease > g.BrowRaiseThreshold {
		return fmt.Errorf("gestures.brow_release (%.3f) must not exceed brow_raise_threshold (%.3f)", g.BrowRelease, g.BrowRaiseThreshold)
	}
	return nil
}
