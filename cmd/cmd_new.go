package cmd

import (
	"bytes"
	"embed"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/gosimple/slug"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed tmpl
var tmplFS embed.FS

// templ renders the embedded scaffold templates with app naming values
type templ struct {
	values map[string]interface{}
}

func newTempl(values map[string]interface{}) *templ {
	return &templ{values: values}
}

func (t *templ) get(name string) ([]byte, error) {
	b, err := tmplFS.ReadFile(path.Join("tmpl", name))
	if err != nil {
		return nil, err
	}

	tp, err := template.New(name).Parse(string(b))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tp.Execute(&buf, t.values); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// newCmd is the cobra CLI command to create a new app
func newCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new APP-NAME",
		Short: "Create a new application",
		Long:  "Generate a new application directory with a default config and schema document",
		Args:  cobra.MinimumNArgs(1),
		Run:   cmdNew,
	}
}

// cmdNew is the handler for the new subcommand
func cmdNew(cmd *cobra.Command, args []string) {
	en := cases.Title(language.English)
	appName := en.String(strings.Join(args, " "))
	appPath := slug.Make(appName)

	cp := filepath.Join(appPath, "config")
	for _, cn := range []string{"dev", "prod"} {
		if err := scaffoldConfig(cp, cn, appName); err != nil {
			log.Fatalf("Failed to create app: %s", err)
		}
	}

	log.Infof("App created in '%s', run 'querygate serve --path %s' to start", appPath, cp)
}

// scaffoldConfig writes the config file for the environment cn plus a
// starter schema document into the directory cp. Existing files are
// left untouched.
func scaffoldConfig(cp, cn, appName string) error {
	if err := os.MkdirAll(cp, os.ModePerm); err != nil {
		return err
	}

	t := newTempl(map[string]interface{}{
		"AppName":     appName,
		"AppNameSlug": slug.Make(appName),
	})

	for _, name := range []string{cn + ".yml", "schema.json"} {
		v, err := t.get(name)
		if err != nil {
			return err
		}
		if err := writeIfNotExists(filepath.Join(cp, name), v); err != nil {
			return err
		}
	}
	return nil
}

func writeIfNotExists(fname string, data []byte) error {
	if _, err := os.Stat(fname); err == nil {
		return nil
	}
	return os.WriteFile(fname, data, 0o600)
}
