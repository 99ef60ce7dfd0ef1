package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mmcdole/kiosk/internal/config"
	"github.com/mmcdole/kiosk/internal/display"
	"github.com/mmcdole/kiosk/internal/domain"
	"github.com/mmcdole/kiosk/internal/tui/styles"
	"github.com/spf13/cobra"
)

// clearSpinnerLine clears the spinner line from the terminal
const clearSpinnerLine = "\r                                    \r"

const verifyTimeout = 15 * time.Second

func newInitCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Configure which display this device plays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runSetupFlow(cmd.InOrStdin(), cmd.OutOrStdout(), cfg, opts.configFile)
		},
	}
}

// runSetupFlow prompts for the display identity, verifies it against the API and
// saves it to the config file
func runSetupFlow(in io.Reader, out io.Writer, cfg *config.Config, configFile string) error {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Welcome to Kiosk!")
	fmt.Fprintln(out)

	reader := bufio.NewReader(in)
	for {
		var err error
		if cfg.Display.APIURL, err = prompt(reader, out, "Signage API URL", cfg.Display.APIURL); err != nil {
			return err
		}
		if cfg.Display.ClientID, err = prompt(reader, out, "Client ID", cfg.Display.ClientID); err != nil {
			return err
		}
		if cfg.Display.DisplayID, err = prompt(reader, out, "Display ID", cfg.Display.DisplayID); err != nil {
			return err
		}

		if !cfg.IsConfigured() {
			fmt.Fprintln(out, "All three values are required. Please try again.")
			continue
		}

		fmt.Fprintln(out)
		d, err := verifyDisplayWithSpinner(out, cfg)
		if err != nil {
			fmt.Fprintf(out, "\n✗ Could not load display: %v\n", err)
			fmt.Fprintln(out, "Please check the values and try again.")
			fmt.Fprintln(out)
			continue
		}
		fmt.Fprintf(out, "✓ Found display %q with %d media items\n", d.Name, len(d.Items))
		break
	}

	var err error
	if configFile != "" {
		err = config.SaveTo(cfg, configFile)
	} else {
		err = config.Save(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "✓ Configuration saved!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Run `kiosk play` to start the slideshow.")
	return nil
}

// prompt reads one line, keeping current when the answer is empty
func prompt(reader *bufio.Reader, out io.Writer, label, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, current)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	input, err := reader.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	if v := strings.TrimSpace(input); v != "" {
		return v, nil
	}
	return current, nil
}

// verifyDisplayWithSpinner fetches the display with a visual spinner
func verifyDisplayWithSpinner(out io.Writer, cfg *config.Config) (domain.Display, error) {
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	type result struct {
		display domain.Display
		err     error
	}
	resultCh := make(chan result, 1)

	client := display.NewClient(cfg.Display.APIURL, nil, nil)
	go func() {
		d, err := client.FetchDisplay(ctx, cfg.Display.ClientID, cfg.Display.DisplayID)
		resultCh <- result{d, err}
	}()

	frame := 0
	fmt.Fprintf(out, "\r%s Checking display...", styles.SpinnerFrames[frame])

	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case res := <-resultCh:
			fmt.Fprint(out, clearSpinnerLine)
			return res.display, res.err

		case <-ticker.C:
			frame++
			fmt.Fprintf(out, "\r%s Checking display...", styles.SpinnerFrames[frame%len(styles.SpinnerFrames)])

		case <-ctx.Done():
			fmt.Fprint(out, clearSpinnerLine)
			return domain.Display{}, fmt.Errorf("display check timed out")
		}
	}
}
