// Package config loads the run configuration of the placement CLI.
//
// Configuration Sources:
//
//  1. Command-line flags (highest priority)
//  2. Environment variables prefixed with EDGE_PLACEMENT_ (dashes become underscores)
//  3. A YAML, JSON or TOML file named by --config
//  4. Default values (lowest priority)
//
// Example usage:
//
//	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
//	config.AddFlags(fs)
//	_ = fs.Parse(os.Args[1:])
//
//	cfg, err := config.Load(fs)
//	if err != nil {
//	    return err
//	}
//
// Engine parameters are not part of RunConfig; PlacersFile points at the YAML document
// parsed by internal/config.
package config
