package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreader/packages/spreadsheet"
)

var scriptPath string

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a script of sheet commands and print the resulting sheet as JSON",
		Long: `run reads one command per line, from --file or stdin:

  set A1 42 | set A2 "text" | set A3 true | set A4 #N/A
  formula B1 A1*2
  clear A1
  insert-rows 3 2 | delete-rows 3 2 | insert-cols 1 1 | delete-cols 1 1
  copy A1 B1:C3 | copy-block A1:B2 D4 | move A1 B1 | move-block A1:B2 D4
  height 3 2 20 | width 0 1 120 | hide-rows 3 2 | hide-cols 1 1 false
  suspend | resume | recalc
  print A1

indices are zero-based. lines starting with # are comments.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if scriptPath != "" {
				f, err := os.Open(scriptPath)
				if err != nil {
					return fmt.Errorf("failed to open script: %w", err)
				}
				defer f.Close()
				in = f
			}

			sheet := spreadsheet.NewSheet(spreadsheet.WithLogger(newLogger(cmd.ErrOrStderr())))
			if err := runScript(in, spreadsheet.RunnerFor(sheet)); err != nil {
				return err
			}

			dump, err := dumpSheet(sheet)
			if err != nil {
				return err
			}
			data, err := marshal(dump, pretty)
			if err != nil {
				return fmt.Errorf("serialization failed: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	cmd.Flags().StringVarP(&scriptPath, "file", "f", "", "Script path (default: stdin)")
	return cmd
}

// runScript executes every command of a script, stopping at the first
// failure
func runScript(in io.Reader, runner *spreadsheet.Runner) error {
	scanner := bufio.NewScanner(in)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := runCommand(runner, text); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return scanner.Err()
}

// splitCommand splits off the first n whitespace separated words of text.
// the rest of the line is returned unsplit.
func splitCommand(text string, n int) ([]string, string) {
	words := make([]string, 0, n)
	rest := text
	for len(words) < n {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			break
		}
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			end = len(rest)
		}
		words = append(words, rest[:end])
		rest = rest[end:]
	}
	return words, strings.TrimLeft(rest, " \t")
}

func runCommand(r *spreadsheet.Runner, text string) error {
	head, rest := splitCommand(text, 1)
	name := head[0]

	switch name {
	case "set":
		args, raw := splitCommand(rest, 1)
		if len(args) != 1 || raw == "" {
			return fmt.Errorf("usage: set <cell> <value>")
		}
		value, err := parseLiteral(raw)
		if err != nil {
			return err
		}
		r.Set(args[0], value)
	case "formula":
		args, formula := splitCommand(rest, 1)
		if len(args) != 1 {
			return fmt.Errorf("usage: formula <cell> <text>")
		}
		r.Formula(args[0], formula)
	case "clear":
		args, extra := splitCommand(rest, 1)
		if len(args) != 1 || extra != "" {
			return fmt.Errorf("usage: clear <cell>")
		}
		r.Clear(args[0])
	case "insert-rows", "delete-rows", "insert-cols", "delete-cols":
		nums, err := indices(rest, 2, name+" <index> <count>")
		if err != nil {
			return err
		}
		switch name {
		case "insert-rows":
			r.InsertRows(nums[0], nums[1])
		case "delete-rows":
			r.DeleteRows(nums[0], nums[1])
		case "insert-cols":
			r.InsertColumns(nums[0], nums[1])
		default:
			r.DeleteColumns(nums[0], nums[1])
		}
	case "copy", "copy-block", "move", "move-block":
		args, extra := splitCommand(rest, 2)
		if len(args) != 2 || extra != "" {
			return fmt.Errorf("usage: %s <from> <to>", name)
		}
		switch name {
		case "copy":
			r.Copy(args[0], args[1])
		case "copy-block":
			r.CopyBlock(args[0], args[1])
		case "move":
			r.Move(args[0], args[1])
		default:
			r.MoveBlock(args[0], args[1])
		}
	case "height", "width":
		args, extra := splitCommand(rest, 3)
		if len(args) != 3 || extra != "" {
			return fmt.Errorf("usage: %s <index> <count> <length>", name)
		}
		nums, err := indices(args[0]+" "+args[1], 2, name)
		if err != nil {
			return err
		}
		length, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid length %q", args[2])
		}
		if name == "height" {
			r.RowHeight(nums[0], nums[1], length)
		} else {
			r.ColumnWidth(nums[0], nums[1], length)
		}
	case "hide-rows", "hide-cols":
		args, extra := splitCommand(rest, 3)
		if len(args) < 2 || extra != "" {
			return fmt.Errorf("usage: %s <index> <count> [true|false]", name)
		}
		nums, err := indices(args[0]+" "+args[1], 2, name)
		if err != nil {
			return err
		}
		hidden := true
		if len(args) == 3 {
			if hidden, err = strconv.ParseBool(args[2]); err != nil {
				return fmt.Errorf("invalid flag %q", args[2])
			}
		}
		if name == "hide-rows" {
			r.HideRows(nums[0], nums[1], hidden)
		} else {
			r.HideColumns(nums[0], nums[1], hidden)
		}
	case "suspend":
		r.Suspend()
	case "resume":
		r.Resume()
	case "recalc":
		r.Recalculate()
	case "print":
		args, extra := splitCommand(rest, 1)
		if len(args) != 1 || extra != "" {
			return fmt.Errorf("usage: print <cell>")
		}
		r.Log(args[0])
	default:
		return fmt.Errorf("unknown command %q", name)
	}

	err := r.Err()
	r.Reset()
	return err
}

// indices parses count zero-based indices out of text
func indices(text string, count int, usage string) ([]uint32, error) {
	fields := strings.Fields(text)
	if len(fields) != count {
		return nil, fmt.Errorf("usage: %s", usage)
	}
	out := make([]uint32, count)
	for i, field := range fields {
		n, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", field)
		}
		out[i] = uint32(n)
	}
	return out, nil
}

// parseLiteral reads a scalar written in a script or request: a quoted
// string, TRUE or FALSE, a number, an error name, null, or bare text
func parseLiteral(raw string) (any, error) {
	switch {
	case strings.HasPrefix(raw, `"`):
		s, err := strconv.Unquote(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid string %s", raw)
		}
		return s, nil
	case strings.EqualFold(raw, "true"):
		return true, nil
	case strings.EqualFold(raw, "false"):
		return false, nil
	case raw == "null":
		return nil, nil
	}
	if ev, ok := spreadsheet.ErrorFromName(strings.ToUpper(raw)); ok {
		return ev, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, nil
	}
	return raw, nil
}
