package check

import "fmt"

// BootFailureMessage is what the boot sequence prints before halting on a
// rejected processor.
const BootFailureMessage = "Unable to boot - please use a kernel appropriate for your CPU."

// Report explains a failed outcome on the console. Erratum text is printed
// by the Validator itself while running.
func Report(c Console, o Outcome) {
	if o.Passed {
		return
	}
	if o.Level < o.RequiredLevel {
		c.PrintLine(fmt.Sprintf("This kernel requires an %s CPU, but only detected an %s CPU.",
			o.RequiredLevel.Name(), o.Level.Name()))
		return
	}
	if o.Missing != nil {
		c.PrintLine("This kernel requires the following features not present on the CPU:")
		c.PrintLine(o.Missing.String())
	}
}
