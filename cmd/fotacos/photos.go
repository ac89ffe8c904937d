package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"fotacos/internal/app"
	"fotacos/internal/config"
	"fotacos/internal/db"
	"fotacos/internal/inbox"
	"fotacos/internal/models"
	"fotacos/internal/services"
)

// withServices runs fn with the opened services and closes them afterwards.
func withServices(cmd *cobra.Command, flags *rootFlags, fn func(cfg config.Config, svc *app.Services, log *zap.Logger) error) (err error) {
	cfg, log, err := flags.load()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	svc, err := app.OpenServices(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, svc.Close()) }()

	return fn(cfg, svc, log)
}

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			database, err := db.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() { err = errs.Combine(err, database.Close()) }()

			if err := database.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info("schema up to date")
			return nil
		},
	}
}

func newListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored photos with their file locations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, flags, func(_ config.Config, svc *app.Services, _ *zap.Logger) error {
				photos, err := svc.Photos.List(cmd.Context())
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tCREATED\tSIZE\tORIGINAL\tTHUMBNAIL")
				for _, photo := range photos {
					original, err := svc.Files.Path(services.OriginalName(photo.Filename))
					if err != nil {
						return err
					}
					thumbnail, err := svc.Files.Path(services.ThumbnailName(photo.Filename))
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
						photo.ID, photo.CreatedAt.Local().Format("2006-01-02 15:04:05"), photo.FileSize, original, thumbnail)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d photos\n", len(photos))
				return nil
			})
		},
	}
}

func newImportCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>...",
		Short: "Import image files from disk",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, flags, func(_ config.Config, svc *app.Services, log *zap.Logger) error {
				var group errs.Group
				for _, path := range args {
					photo, err := importFile(cmd, svc.Photos, path)
					if err != nil {
						log.Warn("import failed", zap.String("file", path), zap.Error(err))
						group.Add(fmt.Errorf("%s: %w", path, err))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", photo.ID, photo.Filename, path)
				}
				return group.Err()
			})
		},
	}
}

func importFile(cmd *cobra.Command, photos *services.PhotoService, path string) (_ *models.Photo, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { err = errs.Combine(err, file.Close()) }()

	contentType, err := inbox.DetectContentType(file)
	if err != nil {
		return nil, err
	}

	return photos.Ingest(cmd.Context(), models.Upload{
		Body:        file,
		Filename:    filepath.Base(path),
		ContentType: contentType,
	})
}

func newRemoveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a photo and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid photo id %q", args[0])
			}

			return withServices(cmd, flags, func(_ config.Config, svc *app.Services, _ *zap.Logger) error {
				message, err := svc.Photos.Remove(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), message)
				return nil
			})
		},
	}
}

func newWatchCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dir]",
		Short: "Import files dropped into a folder (default INBOX_DIR)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, flags, func(cfg config.Config, svc *app.Services, log *zap.Logger) error {
				dir := cfg.InboxDir
				if len(args) == 1 {
					dir = args[0]
				}
				if dir == "" {
					return fmt.Errorf("no inbox folder given")
				}
				return inbox.NewWatcher(log.Named("inbox"), svc.Photos, dir).Run(cmd.Context())
			})
		},
	}
}
