package inventory

// Регистрация database/sql драйверов всех поддерживаемых диалектов.
// Open обращается к драйверу по имени из диалекта, поэтому пакет
// должен быть самодостаточным: импорт здесь, а не у вызывающих.
import (
	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)
