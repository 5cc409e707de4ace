// Copyright 2021 Jonathan Amsterdam.

/*
Package cmdopts populates a struct from command-line options.
The exported fields of the struct are the options; struct tags give their
names, defaults and descriptions. For example, here is a struct for a program
that takes a required name, a count and a verbose switch:

	type options struct {
	  Name    string `opt:"short=n, long=name, required, who to greet"`
	  Count   int    `opt:"short=c, default=1, how many times"`
	  Verbose bool   `opt:"short=v, verbose output"`
	}

Parse the program's arguments into a value of that type:

	var opts options
	res, err := (&cmdopts.Parser{}).Parse(os.Args[1:], &opts)

The error is non-nil only if the struct itself cannot be used, for instance
because a field has an unsupported type. Problems with the command line are
reported in the Result and never stop the parse.

# Struct Tags

Each exported field is an option. The tag syntax is a comma-separated list of
keys, with the description last. The tag may be under the "opt" key or, for
convenience, be the entire struct tag. The keys are:

  - short:    The option's short name, used as -n or /n.
  - long:     The option's long name, used as --name or --name=value.
    If neither short nor long is given, the long name is the lower-cased
    field name.
  - default:  The value assigned when the option does not appear.
  - required: The option must appear unless help is requested.
  - valueopt: The option may appear without a value.
  - doc:      The description. This key can be omitted when the description is last.

A field with the tag `opt:"-"` is not an option. Unexported fields are ignored.

A field's type must be string, int, int32, float64 or bool, or a named type
whose underlying type is one of those. Integers must fit in 32 bits.

Types can instead implement [Definer] to list their options explicitly.

# Command Lines

A token starting with "--" is a long option; anything after an "=" is its
value. A token starting with "-" or "/" is a short option. Other tokens are
ignored. A non-boolean option without an inline value takes the next token as
its value, unless that token itself starts with "-" or "/".

Boolean options never take a value: each occurrence flips the field, so
"-v -v" leaves it false. String values lose one layer of surrounding double
quotes.

The options -h and --help are always defined. They print help when they
appear, and suppress the check for required options.

After all tokens are consumed, fields whose options did not appear get their
defaults, and missing required options are reported. The Result's Status tells
the caller whether help was requested or required options were missing; what
to do about it is up to the caller.
*/
package cmdopts
