package provision

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shaiso/Chatplane/internal/tenantdb"
)

// PartitionedTable описывает таблицу, которая переводится на range-партиции по времени.
type PartitionedTable struct {
	// Name — имя таблицы в схеме public.
	Name string

	// Column — колонка партиционирования (timestamptz).
	Column string

	// Interval, Premake, Retention — параметры pg_partman.
	Interval  string
	Premake   int
	Retention string

	// Indexes — CREATE INDEX для новой таблицы (старые индексы уходят вместе с оригиналом).
	Indexes []string

	// ForeignKeys — FK, которые после конвертации должны ссылаться на новую таблицу
	// или исходить из неё.
	ForeignKeys []ForeignKey
}

// ForeignKey — внешний ключ, пересоздаваемый после конвертации.
type ForeignKey struct {
	Name       string
	Table      string
	Columns    []string
	RefTable   string
	RefColumns []string
}

// DefaultPartitionedTables — высоконагруженные таблицы tenant'а.
// Порядок важен: chat конвертируется раньше message.
func DefaultPartitionedTables() []PartitionedTable {
	messageChatFK := ForeignKey{
		Name:       "message_chat_fk",
		Table:      "message",
		Columns:    []string{"chat_id", "chat_created_at"},
		RefTable:   "chat",
		RefColumns: []string{"id", "created_at"},
	}

	return []PartitionedTable{
		{
			Name:      "chat",
			Column:    "created_at",
			Interval:  "1 month",
			Premake:   4,
			Retention: "24 months",
			Indexes: []string{
				`CREATE INDEX chat_contact_status_idx ON chat (contact_id, status)`,
			},
			ForeignKeys: []ForeignKey{
				{
					Name:       "chat_contact_fk",
					Table:      "chat",
					Columns:    []string{"contact_id"},
					RefTable:   "contact",
					RefColumns: []string{"id"},
				},
				messageChatFK,
			},
		},
		{
			Name:      "message",
			Column:    "created_at",
			Interval:  "1 month",
			Premake:   4,
			Retention: "24 months",
			Indexes: []string{
				`CREATE INDEX message_chat_created_idx ON message (chat_id, created_at)`,
			},
			ForeignKeys: []ForeignKey{messageChatFK},
		},
	}
}

// execer — часть pgx.Tx, нужная шагам конвертации.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// conversion — состояние одной конвертации, передаётся между шагами.
type conversion struct {
	table      PartitionedTable
	legacy     string
	rowsBefore int64
}

// partitionStep — именованный шаг конвертации.
type partitionStep struct {
	Name string
	Run  func(ctx context.Context, tx execer, c *conversion) error
}

// partitionSteps возвращает шаги конвертации в порядке выполнения.
//
// Регистрация в pg_partman идёт до копирования строк: create_parent
// создаёт партиции текущего периода, и строки сразу ложатся в них,
// а не в default-партицию, которую потом пришлось бы разбирать.
func partitionSteps() []partitionStep {
	return []partitionStep{
		{"rename_original", renameOriginal},
		{"create_partitioned", createPartitioned},
		{"add_primary_key", addPrimaryKey},
		{"create_indexes", createIndexes},
		{"register_partman", registerPartman},
		{"copy_rows", copyRows},
		{"recreate_foreign_keys", recreateForeignKeys},
		{"verify_row_count", verifyRowCount},
		{"drop_original", dropOriginal},
		{"run_maintenance", runMaintenance},
		{"verify_partitions", verifyPartitions},
	}
}

// Converter переводит таблицы tenant'а на партиции.
//
// Вся конвертация одной таблицы — одна транзакция: при ошибке любого
// шага база остаётся в исходном состоянии. Уже партиционированная
// таблица пропускается.
type Converter struct {
	steps  []partitionStep
	logger *slog.Logger
}

// NewConverter создаёт Converter со стандартными шагами.
func NewConverter(logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{steps: partitionSteps(), logger: logger}
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Convert конвертирует одну таблицу.
func (c *Converter) Convert(ctx context.Context, db tenantdb.DB, table PartitionedTable) error {
	if !identRe.MatchString(table.Name) || !identRe.MatchString(table.Column) {
		return fmt.Errorf("invalid table definition %q(%q)", table.Name, table.Column)
	}

	return pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		var partitioned bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1
				FROM pg_partitioned_table pt
				JOIN pg_class cl ON cl.oid = pt.partrelid
				JOIN pg_namespace ns ON ns.oid = cl.relnamespace
				WHERE ns.nspname = 'public' AND cl.relname = $1
			)
		`, table.Name).Scan(&partitioned)
		if err != nil {
			return &PartitionStepError{Table: table.Name, Step: "check_partitioned", Cause: err}
		}
		if partitioned {
			c.logger.Debug("table already partitioned", "table", table.Name)
			return nil
		}

		conv := &conversion{table: table, legacy: table.Name + "_unpartitioned"}
		for _, step := range c.steps {
			if err := step.Run(ctx, tx, conv); err != nil {
				return &PartitionStepError{Table: table.Name, Step: step.Name, Cause: err}
			}
			c.logger.Debug("partition step done", "table", table.Name, "step", step.Name)
		}

		c.logger.Info("table partitioned", "table", table.Name, "rows", conv.rowsBefore)
		return nil
	})
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func identList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = ident(n)
	}
	return strings.Join(quoted, ", ")
}

// renameOriginal переименовывает таблицу и все её индексы (включая pkey),
// освобождая имена для новой таблицы.
func renameOriginal(ctx context.Context, tx execer, c *conversion) error {
	if _, err := tx.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`,
		ident(c.table.Name), ident(c.legacy))); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, fmt.Sprintf(`
		DO $$
		DECLARE r record;
		BEGIN
			FOR r IN SELECT indexname FROM pg_indexes
			         WHERE schemaname = 'public' AND tablename = '%s'
			LOOP
				EXECUTE format('ALTER INDEX %%I RENAME TO %%I',
				               r.indexname, left(r.indexname || '_unpartitioned', 63));
			END LOOP;
		END $$`, c.legacy))
	return err
}

func createPartitioned(ctx context.Context, tx execer, c *conversion) error {
	_, err := tx.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE %s (LIKE %s INCLUDING DEFAULTS INCLUDING CONSTRAINTS INCLUDING GENERATED)
		 PARTITION BY RANGE (%s)`,
		ident(c.table.Name), ident(c.legacy), ident(c.table.Column)))
	return err
}

// addPrimaryKey — ключ партиционированной таблицы обязан включать колонку партиционирования.
func addPrimaryKey(ctx context.Context, tx execer, c *conversion) error {
	_, err := tx.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s PRIMARY KEY (id, %s)`,
		ident(c.table.Name), ident(c.table.Name+"_pkey"), ident(c.table.Column)))
	return err
}

func createIndexes(ctx context.Context, tx execer, c *conversion) error {
	for _, stmt := range c.table.Indexes {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func registerPartman(ctx context.Context, tx execer, c *conversion) error {
	parent := "public." + c.table.Name

	if _, err := tx.Exec(ctx, `
		SELECT partman.create_parent(
			p_parent_table => $1,
			p_control      => $2,
			p_interval     => $3,
			p_premake      => $4
		)
	`, parent, c.table.Column, c.table.Interval, c.table.Premake); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, `
		UPDATE partman.part_config
		SET retention = $2, retention_keep_table = false
		WHERE parent_table = $1
	`, parent, c.table.Retention)
	return err
}

func copyRows(ctx context.Context, tx execer, c *conversion) error {
	if err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, ident(c.legacy))).
		Scan(&c.rowsBefore); err != nil {
		return fmt.Errorf("count original rows: %w", err)
	}

	_, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s SELECT * FROM %s`,
		ident(c.table.Name), ident(c.legacy)))
	return err
}

// recreateForeignKeys пересоздаёт FK после копирования, чтобы проверка
// ссылочной целостности шла по уже заполненной таблице.
func recreateForeignKeys(ctx context.Context, tx execer, c *conversion) error {
	for _, fk := range c.table.ForeignKeys {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s`,
			ident(fk.Table), ident(fk.Name))); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(
			`ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)`,
			ident(fk.Table), ident(fk.Name), identList(fk.Columns),
			ident(fk.RefTable), identList(fk.RefColumns))); err != nil {
			return err
		}
	}
	return nil
}

func verifyRowCount(ctx context.Context, tx execer, c *conversion) error {
	var after int64
	if err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, ident(c.table.Name))).
		Scan(&after); err != nil {
		return fmt.Errorf("count partitioned rows: %w", err)
	}
	if after != c.rowsBefore {
		return fmt.Errorf("%w: original %d, partitioned %d", ErrRowCountMismatch, c.rowsBefore, after)
	}
	return nil
}

func dropOriginal(ctx context.Context, tx execer, c *conversion) error {
	_, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE %s`, ident(c.legacy)))
	return err
}

func runMaintenance(ctx context.Context, tx execer, c *conversion) error {
	_, err := tx.Exec(ctx, `SELECT partman.run_maintenance(p_parent_table => $1)`, "public."+c.table.Name)
	return err
}

func verifyPartitions(ctx context.Context, tx execer, c *conversion) error {
	var count int64
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM pg_inherits WHERE inhparent = $1::regclass`,
		"public."+c.table.Name).Scan(&count); err != nil {
		return fmt.Errorf("count partitions: %w", err)
	}
	if count == 0 {
		return ErrNoPartitions
	}
	return nil
}
