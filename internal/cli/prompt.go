package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// confirmAction asks a yes/no question and re-prompts on anything else.
// An empty answer or EOF means no.
func confirmAction(in io.Reader, out io.Writer, question string) (bool, error) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s [y/N]: ", question)
		input, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}

		switch strings.ToLower(strings.TrimSpace(input)) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		}
		if err == io.EOF {
			return false, nil
		}
		fmt.Fprintln(out, "Invalid choice, please try again.")
	}
}
