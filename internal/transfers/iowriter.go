package transfers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const (
	defaultIOSchedule   = 200 * time.Millisecond
	defaultIOThreshold  = 100
	defaultMaxPersisted = 10000
)

const schema = `
CREATE TABLE IF NOT EXISTS transfer_info (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	object_id TEXT NOT NULL,
	parent_id INTEGER NOT NULL DEFAULT 0,
	tag INTEGER NOT NULL,
	last_update INTEGER NOT NULL,
	data BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS transfer_info_object_id ON transfer_info(object_id);
CREATE INDEX IF NOT EXISTS transfer_info_parent_id ON transfer_info(parent_id);
`

type ioAction int

const (
	actionWrite ioAction = iota
	actionRemove
)

type queuedAction struct {
	action ioAction
	info   *TransferInfo
}

// IOWriter persists transfer infos into a SQLite database. Writes and
// removals are queued and applied in batches by a background goroutine.
type IOWriter struct {
	db     *sql.DB
	path   string
	logger logrus.FieldLogger

	mu      sync.Mutex
	queue   []queuedAction
	closed  bool
	flushMu sync.Mutex

	schedule     time.Duration
	threshold    int
	maxPersisted int

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

type IOWriterOption func(*IOWriter)

func WithSchedule(d time.Duration) IOWriterOption {
	return func(w *IOWriter) { w.schedule = d }
}

func WithThreshold(n int) IOWriterOption {
	return func(w *IOWriter) { w.threshold = n }
}

// WithMaxPersisted bounds the number of top level infos kept. Zero keeps
// everything.
func WithMaxPersisted(n int) IOWriterOption {
	return func(w *IOWriter) { w.maxPersisted = n }
}

func OpenIOWriter(path string, logger logrus.FieldLogger, opts ...IOWriterOption) (*IOWriter, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open transfers database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize transfers database: %w", err)
	}

	w := &IOWriter{
		db:           db,
		path:         path,
		logger:       logger,
		schedule:     defaultIOSchedule,
		threshold:    defaultIOThreshold,
		maxPersisted: defaultMaxPersisted,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *IOWriter) Path() string {
	return w.path
}

func (w *IOWriter) Write(info *TransferInfo) {
	w.enqueue(queuedAction{action: actionWrite, info: info})
}

func (w *IOWriter) Remove(info *TransferInfo) {
	w.enqueue(queuedAction{action: actionRemove, info: info})
}

func (w *IOWriter) enqueue(a queuedAction) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, a)
	full := len(w.queue) >= w.threshold
	w.mu.Unlock()
	if full {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

func (w *IOWriter) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.schedule)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
		case <-w.wake:
		}
		if err := w.Flush(); err != nil {
			w.logger.Errorf("Failed to persist transfers: %v", err)
		}
	}
}

// Flush applies every queued action now.
func (w *IOWriter) Flush() error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	queue := w.queue
	w.queue = nil
	w.mu.Unlock()
	if len(queue) == 0 {
		return nil
	}

	writes, removes := coalesce(queue)
	return w.apply(writes, removes)
}

// coalesce keeps the last action queued for each info. Top level writes
// come first so children can point at their parent's row.
func coalesce(queue []queuedAction) (writes, removes []*TransferInfo) {
	last := make(map[*TransferInfo]ioAction, len(queue))
	var order []*TransferInfo
	for _, a := range queue {
		if _, seen := last[a.info]; !seen {
			order = append(order, a.info)
		}
		last[a.info] = a.action
	}
	var children []*TransferInfo
	for _, info := range order {
		switch {
		case last[info] == actionRemove:
			removes = append(removes, info)
		case info.parent == nil:
			writes = append(writes, info)
		default:
			children = append(children, info)
		}
	}
	return append(writes, children...), removes
}

func (w *IOWriter) apply(writes, removes []*TransferInfo) (err error) {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	var assigned []*TransferInfo
	defer func() {
		if err != nil {
			tx.Rollback()
			for _, info := range assigned {
				info.setDBID(0)
			}
		}
	}()

	var write func(info *TransferInfo) error
	write = func(info *TransferInfo) error {
		var parentID int64
		if info.parent != nil {
			if parentID = info.parent.getDBID(); parentID == 0 {
				if err := write(info.parent); err != nil {
					return err
				}
				parentID = info.parent.getDBID()
			}
		}
		tag, lastUpdate, data, err := info.marshal()
		if err != nil {
			return err
		}
		if id := info.getDBID(); id != 0 {
			res, err := tx.Exec(`UPDATE transfer_info SET parent_id = ?, tag = ?, last_update = ?, data = ? WHERE id = ?`,
				parentID, tag, lastUpdate, data, id)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				return nil
			}
		}
		res, err := tx.Exec(`INSERT INTO transfer_info (object_id, parent_id, tag, last_update, data) VALUES (?, ?, ?, ?, ?)`,
			info.ObjectID(), parentID, tag, lastUpdate, data)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		info.setDBID(id)
		assigned = append(assigned, info)
		return nil
	}

	for _, info := range writes {
		if err = write(info); err != nil {
			return err
		}
	}
	for _, info := range removes {
		id := info.getDBID()
		if id == 0 {
			continue
		}
		if _, err = tx.Exec(`DELETE FROM transfer_info WHERE id = ? OR parent_id = ?`, id, id); err != nil {
			return err
		}
		info.setDBID(0)
	}
	if w.maxPersisted > 0 {
		if err = trim(tx, w.maxPersisted); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// trim drops the oldest top level rows beyond max together with their
// children.
func trim(tx *sql.Tx, max int) error {
	const oldest = `SELECT id FROM transfer_info WHERE parent_id = 0 ORDER BY last_update DESC, id DESC LIMIT -1 OFFSET ?`
	if _, err := tx.Exec(`DELETE FROM transfer_info WHERE parent_id IN (`+oldest+`)`, max); err != nil {
		return err
	}
	_, err := tx.Exec(`DELETE FROM transfer_info WHERE id IN (`+oldest+`)`, max)
	return err
}

// Read loads the most recent top level info stored for objectID along with
// its sub-transfers. It returns nil when there is none.
func (w *IOWriter) Read(ctx context.Context, objectID string) (*TransferInfo, error) {
	if err := w.Flush(); err != nil {
		return nil, err
	}
	var (
		id, lastUpdate int64
		tag            int
		data           []byte
	)
	err := w.db.QueryRowContext(ctx,
		`SELECT id, tag, last_update, data FROM transfer_info WHERE object_id = ? AND parent_id = 0 ORDER BY last_update DESC, id DESC LIMIT 1`,
		objectID).Scan(&id, &tag, &lastUpdate, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	info, err := unmarshalInfo(id, objectID, tag, lastUpdate, data, nil)
	if err != nil {
		return nil, err
	}

	rows, err := w.db.QueryContext(ctx,
		`SELECT id, object_id, tag, last_update, data FROM transfer_info WHERE parent_id = ? ORDER BY tag`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			subID, subUpdate int64
			subTag           int
			oid              string
			subData          []byte
		)
		if err := rows.Scan(&subID, &oid, &subTag, &subUpdate, &subData); err != nil {
			return nil, err
		}
		sub, err := unmarshalInfo(subID, oid, subTag, subUpdate, subData, info)
		if err != nil {
			w.logger.WithField("id", subID).Warnf("Skipping unreadable sub-transfer: %v", err)
			continue
		}
		info.subs[subTag] = sub
	}
	return info, rows.Err()
}

// Count returns the number of stored top level infos.
func (w *IOWriter) Count(ctx context.Context) (int, error) {
	if err := w.Flush(); err != nil {
		return 0, err
	}
	var n int
	err := w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transfer_info WHERE parent_id = 0`).Scan(&n)
	return n, err
}

// Purge drops queued actions and every stored row. The infos in keep, and
// their sub-transfers, lose their row ids and are queued to be written anew.
func (w *IOWriter) Purge(keep ...*TransferInfo) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	w.mu.Lock()
	w.queue = nil
	w.mu.Unlock()
	if _, err := w.db.Exec(`DELETE FROM transfer_info`); err != nil {
		return err
	}
	for _, info := range keep {
		info.setDBID(0)
		w.Write(info)
		for _, sub := range info.Subs() {
			sub.setDBID(0)
			w.Write(sub)
		}
	}
	_, err := w.db.Exec(`VACUUM`)
	return err
}

// Close flushes what is queued and closes the database. With purge set the
// database is emptied instead.
func (w *IOWriter) Close(purge bool) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()

	var err error
	if purge {
		err = w.Purge()
	} else {
		err = w.Flush()
	}
	if cerr := w.db.Close(); err == nil {
		err = cerr
	}
	return err
}
