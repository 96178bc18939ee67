package config

import (
	"github.com/grovetools/devdash/util/pathutil"
	"github.com/spf13/pflag"
)

// Overrides holds command line values that take precedence over the file.
type Overrides struct {
	Root   string
	Listen string
}

// BindFlags registers --root and --listen on fs.
func BindFlags(fs *pflag.FlagSet) *Overrides {
	o := &Overrides{}
	fs.StringVar(&o.Root, "root", "", "Projects root directory (overrides projects_root)")
	fs.StringVar(&o.Listen, "listen", "", "Listen address (overrides listen)")
	return o
}

// Apply copies every non-empty override into cfg.
func (o *Overrides) Apply(cfg *Config) error {
	if o == nil {
		return nil
	}
	if o.Root != "" {
		root, err := pathutil.Expand(o.Root, "")
		if err != nil {
			return err
		}
		cfg.ProjectsRoot = root
	}
	if o.Listen != "" {
		cfg.Listen = o.Listen
	}
	return nil
}
