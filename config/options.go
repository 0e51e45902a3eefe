package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RunOptions are the options a run trigger may set. Durations are in
// milliseconds to match the JSON surface.
type RunOptions struct {
	MaxPages             int  `json:"maxPages" validate:"gte=1,lte=200"`
	DelayBetweenRequests int  `json:"delayBetweenRequests" validate:"gte=0,lte=120000"`
	TimeoutMS            int  `json:"timeoutMs" validate:"gte=1000,lte=600000"`
	Headless             bool `json:"headless"`
}

func (o RunOptions) Delay() time.Duration {
	return time.Duration(o.DelayBetweenRequests) * time.Millisecond
}

func (o RunOptions) Timeout() time.Duration {
	return time.Duration(o.TimeoutMS) * time.Millisecond
}

func (o RunOptions) Validate() error {
	if err := validate.Struct(o); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s must be %s %s", fe.Field(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("invalid run options: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid run options: %w", err)
	}
	return nil
}

// Validator exposes the shared validator instance.
func Validator() *validator.Validate {
	return validate
}
