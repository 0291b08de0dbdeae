package main

import (
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/gravitational/trace"
	"github.com/pelletier/go-toml"
)

const (
	// discordPrefix is the flag prefix mapped to the [discord] section
	discordPrefix = "discord"

	// logPrefix is the flag prefix mapped to the [log] section
	logPrefix = "log"
)

// KongTOMLResolver is the kong resolver function for toml configuration file
func KongTOMLResolver(r io.Reader) (kong.Resolver, error) {
	config, err := toml.LoadReader(r)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	// ResolverFunc reads configuration variables from the external source, TOML file in this case
	var f kong.ResolverFunc = func(context *kong.Context, parent *kong.Path, flag *kong.Flag) (interface{}, error) {
		name := flag.Name

		if strings.HasPrefix(name, discordPrefix+"-") {
			name = strings.Join([]string{discordPrefix, name[len(discordPrefix)+1:]}, ".")
		} else if strings.HasPrefix(name, logPrefix+"-") {
			name = strings.Join([]string{logPrefix, name[len(logPrefix)+1:]}, ".")
		}

		value := config.Get(name)
		valueWithinSection := config.Get(strings.ReplaceAll(name, "-", "."))

		if valueWithinSection != nil {
			return valueWithinSection, nil
		}

		return value, nil
	}

	return f, nil
}
