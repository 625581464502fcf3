package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"feedharvest/pkg/models"
	"feedharvest/pkg/vault"
)

var cookiesFile string

// requiredCookies are the cookies a session cannot work without
var requiredCookies = map[models.Platform][]string{
	models.PlatformInstagram: {"sessionid", "csrftoken", "ds_user_id"},
	models.PlatformFacebook:  {"c_user", "xs"},
}

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Manage stored session cookies",
	Long: `Manage the session cookies the harvester authenticates with.

Cookies are encrypted with the vault key before they are stored, either in
the catalog or in the system keyring.`,
}

var cookiesSetCmd = &cobra.Command{
	Use:   "set <instagram|facebook>",
	Short: "Store fresh cookies for a platform",
	Long: `Store fresh cookies for a platform and clear its stale flag.

Cookies are read as JSON, either an object of name to value or a browser
export array of {"name", "value"} entries. They come from --file, from an
interactive prompt, or from stdin when it is not a terminal.

To get them:
1. Log in to the platform in your browser
2. Open Developer Tools (F12)
3. Go to Application/Storage > Cookies
4. Export or copy the cookies as JSON`,
	Example: `  feedharvest cookies set instagram --file ig-cookies.json
  pbpaste | feedharvest cookies set fb`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, err := models.ParsePlatform(args[0])
		if err != nil {
			return err
		}

		data, err := readCookieInput(cmd)
		if err != nil {
			return err
		}
		cookies, err := vault.ParseCookies(data)
		if err != nil {
			return err
		}
		if err := cookies.Require(requiredCookies[platform]...); err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := a.vault()
		if err != nil {
			return err
		}
		if err := v.Store(cmd.Context(), platform, cookies); err != nil {
			return err
		}
		a.out.Success(fmt.Sprintf("Stored %d %s cookies", len(cookies), platform))
		return nil
	},
}

var cookiesStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which platforms have cookies and whether they are stale",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := a.vault()
		if err != nil {
			return err
		}

		var rows [][]string
		for _, p := range []models.Platform{models.PlatformInstagram, models.PlatformFacebook} {
			st, err := v.Status(cmd.Context(), p)
			if err != nil {
				return err
			}
			state := "ok"
			switch {
			case !st.Configured:
				state = "missing"
			case st.Stale:
				state = "stale"
			}
			rows = append(rows, []string{string(p), state})
		}
		a.out.Table([]string{"PLATFORM", "COOKIES"}, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cookiesCmd)
	cookiesCmd.AddCommand(cookiesSetCmd, cookiesStatusCmd)
	cookiesSetCmd.Flags().StringVarP(&cookiesFile, "file", "f", "", "read cookies from this JSON file")
}

func readCookieInput(cmd *cobra.Command) ([]byte, error) {
	if cookiesFile != "" {
		return os.ReadFile(cookiesFile)
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return io.ReadAll(cmd.InOrStdin())
	}

	fmt.Fprint(cmd.OutOrStdout(), "Paste cookies JSON (input hidden): ")
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	return []byte(strings.TrimSpace(string(data))), nil
}
