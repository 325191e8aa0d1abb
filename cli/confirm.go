package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraph/attempts/operator"
)

// confirmer prompts on the command's output and reads one line of input.
// An empty answer, or end of input, picks the default.
func (a *app) confirmer(cmd *cobra.Command) operator.Confirmer {
	return func(prompt string, def bool) bool {
		hint := "[y/N]"
		if def {
			hint = "[Y/n]"
		}
		fmt.Fprintf(out(cmd), "%s %s ", prompt, hint)

		line, err := a.in.ReadString('\n')
		if err != nil && err != io.EOF {
			return def
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "":
			return def
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}
