package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/crmkeeper/internal/backup"
	"github.com/dmitrijs2005/crmkeeper/internal/common"
	"github.com/dmitrijs2005/crmkeeper/internal/filex"
)

// export writes a backup file, by default into the configured backup
// directory, and an offsite copy when S3 is configured.
func (a *App) export(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return usageError("export [file]")
	}
	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		dir, err := filex.EnsureDir(a.config.BackupDir)
		if err != nil {
			return err
		}
		path = filepath.Join(dir, backup.FileName(a.now()))
	}

	var buf bytes.Buffer
	if err := a.crm.Export(ctx, &buf); err != nil {
		return err
	}
	if err := filex.WriteFileAtomic(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	a.success("Backup written to %s", path)

	if a.uploader == nil {
		return nil
	}

	stop := startSpinner(a.out, "Uploading offsite copy...")
	location, err := a.uploader.Upload(ctx, filepath.Base(path), buf.Bytes())
	stop()
	if err != nil {
		return err
	}
	a.success("Uploaded to %s", location)
	return nil
}

func (a *App) discard(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("discard <collection>")
	}
	name := args[0]
	if _, ok := a.crm.Unreadable()[name]; !ok {
		return fmt.Errorf("%w: %s is not an unreadable collection", common.ErrValidation, name)
	}

	answer, err := a.ask(ctx, fmt.Sprintf("The stored %s will be lost for good. Continue? [y/N]", name))
	if err != nil {
		return err
	}
	if answer != "y" && answer != "Y" {
		a.println("Cancelled")
		return nil
	}

	if err := a.crm.Discard(ctx, name); err != nil {
		return err
	}
	a.success("Started %s empty", name)
	return nil
}

func (a *App) importBackup(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("import <file>")
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()

	answer, err := a.ask(ctx, "This replaces all contacts, deals and leads. Continue? [y/N]")
	if err != nil {
		return err
	}
	if answer != "y" && answer != "Y" {
		a.println("Cancelled")
		return nil
	}

	if err := a.crm.Import(ctx, f); err != nil {
		return err
	}
	a.success("Imported %d contacts, %d deals, %d leads",
		len(a.crm.Contacts()), len(a.crm.Deals()), len(a.crm.Leads()))
	return nil
}
