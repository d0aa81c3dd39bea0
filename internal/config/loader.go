package config

import (
	"errors"
	"flag"
	"os"
	"reflect"
	"time"

	"github.com/edubounty/edubounty/internal/lib"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/omeid/uconfig/flat"
)

const (
	TagEnv  = "env"
	TagFlag = "flag"
	TagDesc = "desc"
)

var (
	ErrEnvLoad          = errors.New("error during loading .env file")
	ErrEnvParse         = errors.New("cannot parse env variable")
	ErrFlagParse        = errors.New("cannot parse flag")
	ErrConfigInvalid    = errors.New("invalid config struct")
	ErrConfigValidation = errors.New("config validation error")
)

type Defaulter interface {
	SetDefaults()
}

// LoadConfig fills cfg from environment variables and command line flags, flags take precedence.
// Values of a .env file in the working directory are loaded into the environment first, without
// overriding variables that are already set.
func LoadConfig(cfg interface{}, osArgs *[]string) error {
	err := godotenv.Load(".env")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return lib.WrapError(ErrEnvLoad, err)
	}

	// recursively iterates over each field of the nested struct
	fields, err := flat.View(cfg)
	if err != nil {
		return lib.WrapError(ErrConfigInvalid, err)
	}

	flagset := flag.NewFlagSet("", flag.ContinueOnError)

	for _, field := range fields {
		envName, ok := field.Tag(TagEnv)
		if !ok {
			continue
		}

		envValue, isSet := os.LookupEnv(envName)
		if isSet && envValue != "" {
			err := field.Set(envValue)
			if err != nil {
				return lib.WrapError(ErrEnvParse, errors.New(envName+": "+err.Error()))
			}
		}

		flagName, ok := field.Tag(TagFlag)
		if !ok {
			continue
		}

		flagDesc, _ := field.Tag(TagDesc)

		// writes flag value to variable
		flagset.Var(field, flagName, flagDesc)
	}

	var args []string
	if osArgs != nil {
		args = *osArgs
	} else {
		args = os.Args
	}

	// flags override .env variables
	if len(args) > 0 {
		err = flagset.Parse(args[1:])
		if err != nil {
			return lib.WrapError(ErrFlagParse, err)
		}
	}

	if d, ok := cfg.(Defaulter); ok {
		d.SetDefaults()
	}

	err = newValidator().Struct(cfg)
	if err != nil {
		return lib.WrapError(ErrConfigValidation, err)
	}

	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		return fl.Field().Type() == reflect.TypeOf(time.Duration(0))
	})
	return v
}
