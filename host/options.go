// Copyright 2021 Jonathan Amsterdam.

package host

// NoPrefix is the default of ServiceOptions.Prefix. It means no prefix.
const NoPrefix = "<no prefix>"

// ServiceOptions are the command-line options of a program run as a service.
type ServiceOptions struct {
	Prefix string `opt:"short=p, long=prefix, default=<no prefix>, Service name prefix. For example: DCA1_"`
}

// ServiceName returns name with the prefix applied.
func (o *ServiceOptions) ServiceName(name string) string {
	if o.Prefix == NoPrefix {
		return name
	}
	return o.Prefix + name
}
