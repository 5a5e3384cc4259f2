// Package store keeps one settings document per account as a YAML file in
// a data directory.
package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"gopkg.in/yaml.v3"

	"bandaid/api"
	"bandaid/settings"
)

// DefaultUser owns the document when a request names no account
const DefaultUser = "default"

// Documents reads and writes <dir>/<user>.yaml
type Documents struct {
	dir string
	mu  sync.Mutex
}

func NewDocuments(dir string) *Documents {
	return &Documents{dir: dir}
}

func (d *Documents) path(user string) string {
	name := sanitizeFilename(user)
	if name == "" {
		name = DefaultUser
	}
	return filepath.Join(d.dir, name+".yaml")
}

// Get returns the stored document of user. A missing document is a
// NotFound error.
func (d *Documents) Get(ctx context.Context, user string) (api.Document, error) {
	if err := ctx.Err(); err != nil {
		return api.Document{}, err
	}
	d.mu.Lock()
	data, err := os.ReadFile(d.path(user))
	d.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return api.Document{}, fault.Wrap(err,
			ftag.With(ftag.NotFound),
			fmsg.WithDesc("no document for "+user, "No saved settings"))
	}
	if err != nil {
		return api.Document{}, fault.Wrap(err, fmsg.WithDesc("read document", "Failed to fetch settings"))
	}

	var doc api.Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return api.Document{}, fault.Wrap(err, fmsg.WithDesc("parse "+d.path(user), "Failed to fetch settings"))
	}
	return doc, nil
}

// Put replaces the document of user. The file is written to a temporary
// name and renamed so readers never see half a document.
func (d *Documents) Put(ctx context.Context, user string, doc api.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fault.Wrap(err, fmsg.WithDesc("encode document", "Failed to save settings"))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return fault.Wrap(err, fmsg.WithDesc("create data dir", "Failed to save settings"))
	}
	tmp, err := os.CreateTemp(d.dir, ".doc-*")
	if err != nil {
		return fault.Wrap(err, fmsg.WithDesc("temp file", "Failed to save settings"))
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fault.Wrap(err, fmsg.WithDesc("write document", "Failed to save settings"))
	}
	if err := tmp.Close(); err != nil {
		return fault.Wrap(err, fmsg.WithDesc("close document", "Failed to save settings"))
	}
	if err := os.Rename(tmp.Name(), d.path(user)); err != nil {
		return fault.Wrap(err, fmsg.WithDesc("rename document", "Failed to save settings"))
	}
	return nil
}

// Reset stores the default document for user and returns it
func (d *Documents) Reset(ctx context.Context, user string) (api.Document, error) {
	doc := api.FromSettings(settings.Default())
	if err := d.Put(ctx, user, doc); err != nil {
		return api.Document{}, fault.Wrap(err, fmsg.WithDesc("reset", "Failed to reset settings"))
	}
	return doc, nil
}

// Users lists the accounts with a stored document
func (d *Documents) Users() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(err)
	}
	var users []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".yaml" {
			continue
		}
		users = append(users, strings.TrimSuffix(name, ".yaml"))
	}
	return users, nil
}

// sanitizeFilename replaces characters that are problematic in filenames
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer(
		" ", "-",
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
	).Replace(name)
	return strings.TrimLeft(name, ".")
}

// Local is the settings.Persistence of one account's document, used when
// the dashboard runs without a backend
type Local struct {
	Docs *Documents
	User string
}

func (l Local) Load(ctx context.Context) (settings.Settings, error) {
	doc, err := l.Docs.Get(ctx, l.User)
	if api.IsNotFound(err) {
		return settings.Default(), nil
	}
	if err != nil {
		return settings.Settings{}, err
	}
	return doc.Settings(), nil
}

func (l Local) Save(ctx context.Context, s settings.Settings) error {
	return l.Docs.Put(ctx, l.User, api.FromSettings(s))
}

func (l Local) Reset(ctx context.Context) (settings.Settings, error) {
	doc, err := l.Docs.Reset(ctx, l.User)
	if err != nil {
		return settings.Settings{}, err
	}
	return doc.Settings(), nil
}
