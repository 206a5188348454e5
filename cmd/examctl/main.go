package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exam-engine/internal/config"
	"exam-engine/internal/database"
	"exam-engine/internal/dto"
	"exam-engine/internal/logger"
	"exam-engine/internal/repository"
	"exam-engine/internal/service"
	"exam-engine/internal/validation"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "examctl",
		Short:        "Maintenance commands for the exam engine database",
		SilenceUsage: true,
	}
	root.AddCommand(migrateCmd(), importCmd(), exportCmd())
	return root
}

// env holds what every subcommand needs once config and logger are up.
type env struct {
	cfg *config.Config
	db  *sqlx.DB
	log *zap.Logger
}

func setup() (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Initialize(cfg.Logger); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if cfg.DB.Driver == "memory" {
		return nil, fmt.Errorf("examctl needs a database, DB_DRIVER is %q", cfg.DB.Driver)
	}
	db, err := database.NewSQLXOracleDB(cfg.GetDSN())
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, db: db, log: logger.Get()}, nil
}

func (e *env) close() {
	e.db.Close()
	_ = logger.Sync()
}

func (e *env) trees() service.ExamTreeReader {
	return service.NewExamTreeReader(repository.NewExamRepository(e.db), nil, 0)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			applied, err := database.RunMigrations(cmd.Context(), e.db)
			if err != nil {
				return err
			}
			e.log.Info("Migrations applied", zap.Int("count", applied))
			return nil
		},
	}
}

// decodeImportFile accepts a single exam tree or a JSON array of them.
func decodeImportFile(data []byte) ([]dto.ImportExamRequest, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("file is empty")
	}
	if data[0] == '[' {
		var reqs []dto.ImportExamRequest
		if err := json.Unmarshal(data, &reqs); err != nil {
			return nil, err
		}
		return reqs, nil
	}
	var req dto.ImportExamRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return []dto.ImportExamRequest{req}, nil
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import exam trees from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			reqs, err := decodeImportFile(data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			svc := service.NewExamService(
				repository.NewExamRepository(e.db),
				repository.NewAttemptRepository(e.db),
				e.trees(),
				repository.NewTransactionManagerAdapter(e.db),
				validation.NewValidator(),
			)
			exams, err := svc.ImportExams(cmd.Context(), reqs)
			if err != nil {
				return err
			}
			for _, exam := range exams {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", exam.ID, exam.Code, exam.Title)
			}
			e.log.Info("Exams imported", zap.Int("count", len(exams)), zap.String("file", args[0]))
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var (
		examID int64
		status string
		userID string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export attempts to an XLSX workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			query := dto.AttemptListQuery{UserID: userID, Status: status}
			if examID > 0 {
				query.ExamID = &examID
			}
			if out == "" {
				out = fmt.Sprintf("attempts-%s.xlsx", time.Now().Format("20060102-150405"))
			}

			svc := service.NewAttemptService(
				repository.NewAttemptRepository(e.db),
				repository.NewAnswerRepository(e.db),
				e.trees(),
				repository.NewTransactionManagerAdapter(e.db),
				nil,
				validation.NewValidator(),
			)

			var buf bytes.Buffer
			rows, err := svc.ExportAttempts(cmd.Context(), query, &buf)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return err
			}
			e.log.Info("Attempts exported", zap.Int("rows", rows), zap.String("file", out))
			return nil
		},
	}
	f := cmd.Flags()
	f.Int64Var(&examID, "exam-id", 0, "Only attempts of this exam")
	f.StringVar(&status, "status", "", "IN_PROGRESS or SUBMITTED")
	f.StringVar(&userID, "user-id", "", "Only attempts of this user")
	f.StringVarP(&out, "out", "o", "", "Output file (default attempts-<timestamp>.xlsx)")
	return cmd
}
