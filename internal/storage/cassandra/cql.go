package cassandra

import (
	"fmt"
	"regexp"
	"strings"

	"sessionetl/internal/schema"
)

var safeIdent = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// qident leaves lowercase identifiers bare and double-quotes the rest.
func qident(s string) string {
	if safeIdent.MatchString(s) {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func cqlType(t schema.ColumnType) string {
	switch t {
	case schema.TypeInt:
		return "int"
	case schema.TypeDouble:
		return "double"
	}
	return "text"
}

// CreateKeyspaceCQL renders an idempotent SimpleStrategy keyspace.
func CreateKeyspaceCQL(keyspace string, replicationFactor int) string {
	if replicationFactor <= 0 {
		replicationFactor = 1
	}
	return fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		qident(keyspace), replicationFactor)
}

// CreateTableCQL renders t with a composite partition key and clustering
// order.
func CreateTableCQL(keyspace string, t schema.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s.%s (", qident(keyspace), qident(t.Name))
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "%s %s, ", qident(c.Name), cqlType(c.Type))
	}

	pk := make([]string, len(t.PartitionKey))
	for i, k := range t.PartitionKey {
		pk[i] = qident(k)
	}
	b.WriteString("PRIMARY KEY ((")
	b.WriteString(strings.Join(pk, ", "))
	b.WriteString(")")
	for _, c := range t.Clustering {
		b.WriteString(", " + qident(c.Name))
	}
	b.WriteString("))")

	if len(t.Clustering) > 0 {
		order := make([]string, len(t.Clustering))
		for i, c := range t.Clustering {
			order[i] = qident(c.Name) + " " + c.Order.String()
		}
		fmt.Fprintf(&b, " WITH CLUSTERING ORDER BY (%s)", strings.Join(order, ", "))
	}
	return b.String()
}

func dropTableCQL(keyspace, name string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", qident(keyspace), qident(name))
}

// InsertCQL renders an INSERT; in CQL every insert is an upsert by key.
func InsertCQL(keyspace, table string, columns []string) string {
	cols := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = qident(c)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		qident(keyspace), qident(table), strings.Join(cols, ", "), strings.Join(marks, ", "))
}

// SelectCQL renders a key-restricted read. Rows come back in clustering
// order without an ORDER BY.
func SelectCQL(keyspace, table string, columns []string, p schema.Predicate) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = qident(c)
	}
	q := fmt.Sprintf("SELECT %s FROM %s.%s", strings.Join(cols, ", "), qident(keyspace), qident(table))
	if len(p) == 0 {
		return q
	}
	conds := make([]string, len(p))
	for i, c := range p {
		conds[i] = qident(c.Column) + " = ?"
	}
	return q + " WHERE " + strings.Join(conds, " AND ")
}
