package listing

// View is one rendered page of the table.
type View struct {
	Rows      []Row  `json:"rows"`
	Query     string `json:"query"`
	PageIndex int    `json:"page_index"`
	PageSize  int    `json:"page_size"`
	PageCount int    `json:"page_count"`
	Total     int    `json:"total"`
}

// Table holds the search and pagination state over a fixed row set. The
// rendered view depends only on the rows, the query, the page index and the
// page size.
type Table struct {
	rows      []Row
	query     string
	pageIndex int
	pageSize  int
}

// NewTable starts on page 0 with DefaultPageSize and no query.
func NewTable(rows []Row) *Table {
	return &Table{rows: rows, pageSize: DefaultPageSize}
}

// SetRows replaces the data set, keeping query and page size.
func (t *Table) SetRows(rows []Row) {
	t.rows = rows
	t.clampPage()
}

// SetQuery changes the search text and returns to the first page.
func (t *Table) SetQuery(q string) {
	t.query = q
	t.pageIndex = 0
}

// SetPageSize changes the page size and returns to the first page.
// Non-positive sizes are ignored.
func (t *Table) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	t.pageSize = n
	t.pageIndex = 0
}

// SetPage jumps to page i, clamped into range.
func (t *Table) SetPage(i int) {
	t.pageIndex = i
	t.clampPage()
}

// NextPage and PrevPage step the page index within range.
func (t *Table) NextPage() { t.SetPage(t.pageIndex + 1) }

func (t *Table) PrevPage() { t.SetPage(t.pageIndex - 1) }

// PageCount is the number of pages of the filtered rows.
func (t *Table) PageCount() int {
	return PageCount(len(Filter(t.rows, t.query)), t.pageSize)
}

// View renders the current page.
func (t *Table) View() View {
	filtered := Filter(t.rows, t.query)
	return View{
		Rows:      Paginate(filtered, t.pageIndex, t.pageSize),
		Query:     t.query,
		PageIndex: t.pageIndex,
		PageSize:  t.pageSize,
		PageCount: PageCount(len(filtered), t.pageSize),
		Total:     len(filtered),
	}
}

func (t *Table) clampPage() {
	last := t.PageCount() - 1
	if t.pageIndex > last {
		t.pageIndex = last
	}
	if t.pageIndex < 0 {
		t.pageIndex = 0
	}
}
