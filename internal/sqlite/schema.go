package sqlite

// Schema DDL. Display names and column names compare case-insensitively,
// as they do on the hosted list service.
const (
	createLists = `CREATE TABLE IF NOT EXISTS lists (
    list_id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL UNIQUE COLLATE NOCASE,
    created_at TEXT NOT NULL
);`

	createColumns = `CREATE TABLE IF NOT EXISTS columns (
    list_id TEXT NOT NULL,
    name TEXT NOT NULL COLLATE NOCASE,
    kind TEXT NOT NULL,
    required INTEGER NOT NULL,
    choices TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    PRIMARY KEY (list_id, name),
    FOREIGN KEY (list_id) REFERENCES lists(list_id)
);`

	createItems = `CREATE TABLE IF NOT EXISTS items (
    item_id INTEGER PRIMARY KEY AUTOINCREMENT,
    list_id TEXT NOT NULL,
    fields TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    FOREIGN KEY (list_id) REFERENCES lists(list_id)
);`

	createFolders = `CREATE TABLE IF NOT EXISTS folders (
    path TEXT PRIMARY KEY,
    created_at TEXT NOT NULL
);`

	createFiles = `CREATE TABLE IF NOT EXISTS files (
    path TEXT NOT NULL,
    name TEXT NOT NULL,
    content BLOB NOT NULL,
    size INTEGER NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (path, name),
    FOREIGN KEY (path) REFERENCES folders(path)
);`
)

const (
	idxItemsList = `CREATE INDEX IF NOT EXISTS idx_items_list ON items(list_id);`
)

// schemaDDL lists all statements in dependency order.
var schemaDDL = []string{
	createLists,
	createColumns,
	createItems,
	createFolders,
	createFiles,
	idxItemsList,
}
