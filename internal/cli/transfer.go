package cli

import (
	"errors"
	"fmt"
	"io"

	"iuran-data/internal/domain"
	"iuran-data/internal/service"
	"iuran-data/internal/sheet"

	"github.com/spf13/cobra"
)

func newImportCommand(rootOpts *RootOptions, open Opener) *cobra.Command {
	var (
		file      string
		role      string
		complexID string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import roster rows from an xlsx or csv file",
		Long: `Import roster rows from a spreadsheet whose header row contains
"NIK" and "Nama Lengkap" (or "nik" / "nama_lengkap").

Every row is inserted independently; rejected rows are reported with their
spreadsheet row number and do not stop the import.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseRole(role)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --role", err)
			}
			return withDeps(cmd, rootOpts, open, func(d *Deps) error {
				return runImport(cmd, rootOpts, d, pathPicker{path: file}, r, domain.StrPtr(complexID))
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "spreadsheet to import (.xlsx or .csv)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleResident), "role for every imported row (resident|security)")
	cmd.Flags().StringVar(&complexID, "complex", "", "housing complex id for every imported row")
	return cmd
}

func runImport(cmd *cobra.Command, opts *RootOptions, d *Deps, picker service.FilePicker, role domain.Role, complexID *string) error {
	res, err := d.Roster.ImportRoster(cmd.Context(), picker, role, complexID)
	if errors.Is(err, service.ErrImportCancelled) {
		fmt.Fprintln(cmd.ErrOrStderr(), "no file given, nothing imported")
		return nil
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "import failed", err)
	}

	if err := newPrinter(opts, cmd.OutOrStdout()).emit(res, func(w io.Writer) {
		fmt.Fprintf(w, "Berhasil: %d, Gagal: %d\n", res.SuccessCount, res.FailedCount)
		for _, msg := range res.Errors {
			fmt.Fprintf(w, "  %s\n", msg)
		}
	}); err != nil {
		return err
	}
	if res.FailedCount > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d row(s) rejected", res.FailedCount))
	}
	return nil
}

func newExportCommand(rootOpts *RootOptions, open Opener) *cobra.Command {
	var (
		format    string
		complexID string
		outDir    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the roster to a spreadsheet file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := sheet.ParseFormat(format)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --format", err)
			}
			return withDeps(cmd, rootOpts, open, func(d *Deps) error {
				sharer := &dirSharer{dir: outDir}
				file, err := d.Roster.ShareRoster(cmd.Context(), sharer, domain.StrPtr(complexID), f)
				if errors.Is(err, service.ErrEmptyExport) {
					return NewExitError(ExitFailure, "Tidak ada data untuk diekspor")
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "export failed", err)
				}
				return newPrinter(rootOpts, cmd.OutOrStdout()).emit(map[string]any{
					"path":      sharer.saved,
					"file_name": file.FileName,
					"bytes":     len(file.Content),
				}, func(w io.Writer) {
					fmt.Fprintln(w, sharer.saved)
				})
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", string(sheet.FormatXLSX), "file format (xlsx|csv)")
	cmd.Flags().StringVar(&complexID, "complex", "", "only export rows of this housing complex")
	cmd.Flags().StringVar(&outDir, "out", ".", "directory to write the file to")
	return cmd
}

func newTemplateCommand(rootOpts *RootOptions, open Opener) *cobra.Command {
	var (
		format string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write an empty import template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := sheet.ParseFormat(format)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --format", err)
			}
			return withDeps(cmd, rootOpts, open, func(d *Deps) error {
				file, err := d.Roster.ImportTemplate(f)
				if err != nil {
					return err
				}
				sharer := &dirSharer{dir: outDir}
				if err := sharer.Share(cmd.Context(), file); err != nil {
					return WrapExitError(ExitCommandError, "write template", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), sharer.saved)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", string(sheet.FormatXLSX), "file format (xlsx|csv)")
	cmd.Flags().StringVar(&outDir, "out", ".", "directory to write the file to")
	return cmd
}

func newStatsCommand(rootOpts *RootOptions, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print dashboard counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, rootOpts, open, func(d *Deps) error {
				st, err := d.Stats.GetStats(cmd.Context())
				if err != nil {
					return WrapExitError(ExitCommandError, "stats failed", err)
				}
				return newPrinter(rootOpts, cmd.OutOrStdout()).emit(st, func(w io.Writer) {
					fmt.Fprintf(w, "Warga:        %d\n", st.ResidentCount)
					fmt.Fprintf(w, "Satpam:       %d\n", st.SecurityCount)
					fmt.Fprintf(w, "Sudah klaim:  %d\n", st.ClaimedCount)
				})
			})
		},
	}
}
