package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kommetio/kommet-core/internal/types"
)

// Query compilation errors.
var (
	// ErrWholeRelationship is returned when a bare relationship is selected
	// without a subfield (e.g. "father" instead of "father.id").
	ErrWholeRelationship = errors.New("cannot reference whole relationship")

	// ErrNotGrouped is returned when a grouped query selects a plain property
	// that is neither grouped by nor aggregated.
	ErrNotGrouped = errors.New("property is neither grouped nor aggregated")

	// ErrCollectionRestriction is returned when a restriction or ordering
	// references a collection field.
	ErrCollectionRestriction = errors.New("cannot restrict or order by a collection field")
)

// JoinType selects how a reference path is joined.
type JoinType int

const (
	LeftJoin JoinType = iota
	InnerJoin
)

// String returns the SQL keyword of the join type.
func (j JoinType) String() string {
	switch j {
	case InnerJoin:
		return "INNER"
	default:
		return "LEFT"
	}
}

// AggregateFunc enumerates the supported aggregate functions.
type AggregateFunc string

const (
	AggCount AggregateFunc = "count"
	AggSum   AggregateFunc = "sum"
	AggAvg   AggregateFunc = "avg"
	AggMin   AggregateFunc = "min"
	AggMax   AggregateFunc = "max"
)

// ParseAggregateFunc recognizes an aggregate function name.
func ParseAggregateFunc(name string) (AggregateFunc, bool) {
	switch AggregateFunc(strings.ToLower(name)) {
	case AggCount, AggSum, AggAvg, AggMin, AggMax:
		return AggregateFunc(strings.ToLower(name)), true
	}
	return "", false
}

// SortDirection orders query results.
type SortDirection int

const (
	Asc SortDirection = iota
	Desc
)

// String returns the SQL keyword of the direction.
func (d SortDirection) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

type property struct {
	path      string
	aggregate AggregateFunc // empty for plain properties
}

// label is the canonical name the property is addressable under on result rows.
func (p property) label() string {
	if p.aggregate != "" {
		return string(p.aggregate) + "(" + p.path + ")"
	}
	return p.path
}

type orderBy struct {
	path string
	dir  SortDirection
}

type aliasDecl struct {
	alias    string
	joinType JoinType
}

// Criteria is a composable query specification for one type. It is built up
// through the builder methods and compiled once into SQL.
type Criteria struct {
	typ      *types.Type
	resolver types.TypeResolver

	properties   []property
	groupBy      []string
	restrictions []Restriction
	orderings    []orderBy
	aliases      map[string]aliasDecl // ref path -> declared alias
	limit        int
	offset       int

	// readFilter, when set by the access control layer, is ANDed into the ON
	// clause of every join so unreadable referenced records surface as NULL.
	readFilter func(t *types.Type, alias string) string
}

// NewCriteria creates an empty criteria for the given type.
func NewCriteria(t *types.Type, resolver types.TypeResolver) *Criteria {
	return &Criteria{
		typ:      t,
		resolver: resolver,
		aliases:  make(map[string]aliasDecl),
	}
}

// Type returns the queried type.
func (c *Criteria) Type() *types.Type {
	return c.typ
}

// AddProperty requests a property, possibly a nested reference path.
func (c *Criteria) AddProperty(path string) *Criteria {
	c.properties = append(c.properties, property{path: path})
	return c
}

// AddAggregateFunction requests an aggregate over a property. The result is
// addressable under the canonical label "fn(path)".
func (c *Criteria) AddAggregateFunction(fn AggregateFunc, path string) *Criteria {
	c.properties = append(c.properties, property{path: path, aggregate: fn})
	return c
}

// AddGroupByProperty groups results by a property. The property is implicitly
// selected.
func (c *Criteria) AddGroupByProperty(path string) *Criteria {
	c.groupBy = append(c.groupBy, path)
	return c
}

// CreateAlias declares an explicit alias and join type for a reference path.
func (c *Criteria) CreateAlias(path, alias string, joinType JoinType) *Criteria {
	c.aliases[path] = aliasDecl{alias: alias, joinType: joinType}
	return c
}

// Add appends a restriction; all top-level restrictions are ANDed.
func (c *Criteria) Add(r Restriction) *Criteria {
	c.restrictions = append(c.restrictions, r)
	return c
}

// AddOrderBy appends an ordering on a property path or aggregate label.
func (c *Criteria) AddOrderBy(dir SortDirection, path string) *Criteria {
	c.orderings = append(c.orderings, orderBy{path: path, dir: dir})
	return c
}

// SetLimit caps the number of returned rows; zero means no limit.
func (c *Criteria) SetLimit(limit int) *Criteria {
	c.limit = limit
	return c
}

// SetOffset skips the first offset rows. Applied after grouping and ordering.
func (c *Criteria) SetOffset(offset int) *Criteria {
	c.offset = offset
	return c
}

// IsGrouped reports whether the criteria has any group-by property.
func (c *Criteria) IsGrouped() bool {
	return len(c.groupBy) > 0
}

// selectCol describes one column of the compiled select list.
type selectCol struct {
	label     string
	path      string
	aggregate AggregateFunc
	chain     *types.FieldChain
	sqlAlias  string // c0, c1, ...
}

// collectionProp describes a requested collection property, loaded by a
// follow-up batch query rather than a join.
type collectionProp struct {
	field   *types.Field // the collection field on the root type
	subPath string       // path within the related type, "" selects ids only
}

// joinInfo is one resolved join of the compiled query.
type joinInfo struct {
	refPath  string
	alias    string
	joinType JoinType
	table    string
	// parentAlias.parentColumn = alias.id
	parentAlias  string
	parentColumn string
	// extra predicate ANDed into the ON clause (access control)
	extraOn string
}

// SelectQuery is the compiled form of a criteria: SQL text plus the metadata
// needed to hydrate result rows.
type SelectQuery struct {
	SQL         string
	Columns     []selectCol
	Collections []collectionProp
	Grouped     bool
	Type        *types.Type
}

// compileContext carries the state of one compilation pass.
type compileContext struct {
	criteria   *Criteria
	joins      []*joinInfo
	joinByPath map[string]*joinInfo
	aliasSeq   int
	// joinFilter, when set, is appended to the ON clause of every join to a
	// readable-restricted type (access control: unreadable references come
	// back NULL instead of failing).
	joinFilter func(t *types.Type, alias string) string
}

const rootAlias = "t0"

func newCompileContext(c *Criteria) *compileContext {
	return &compileContext{
		criteria:   c,
		joinByPath: make(map[string]*joinInfo),
	}
}

// aliasFor returns the table alias for a reference path prefix, materializing
// the join chain on first use.
func (cc *compileContext) aliasFor(refPath string) (string, error) {
	if refPath == "" {
		return rootAlias, nil
	}
	if j, ok := cc.joinByPath[refPath]; ok {
		return j.alias, nil
	}

	parentPath := ""
	lastSegment := refPath
	if idx := strings.LastIndexByte(refPath, '.'); idx >= 0 {
		parentPath = refPath[:idx]
		lastSegment = refPath[idx+1:]
	}
	parentAlias, err := cc.aliasFor(parentPath)
	if err != nil {
		return "", err
	}

	chain, err := cc.criteria.typ.GetField(refPath, cc.criteria.resolver)
	if err != nil {
		return "", err
	}
	refField := chain.Terminal
	if refField.DataType.Kind != types.KindTypeReference {
		return "", fmt.Errorf("%w: %s", ErrCollectionRestriction, refPath)
	}
	refType, ok := cc.criteria.resolver.Type(refField.DataType.RefTypeID)
	if !ok {
		return "", fmt.Errorf("%w: related type of %s", types.ErrNoSuchType, refPath)
	}

	decl, declared := cc.criteria.aliases[refPath]
	join := &joinInfo{
		refPath:      refPath,
		joinType:     LeftJoin,
		table:        refType.TableName(),
		parentAlias:  parentAlias,
		parentColumn: toColumn(lastSegment),
	}
	if declared {
		join.alias = decl.alias
		join.joinType = decl.joinType
	} else {
		cc.aliasSeq++
		join.alias = fmt.Sprintf("t%d", cc.aliasSeq)
	}
	if cc.joinFilter != nil {
		join.extraOn = cc.joinFilter(refType, join.alias)
	}
	cc.joins = append(cc.joins, join)
	cc.joinByPath[refPath] = join
	return join.alias, nil
}

// columnFor resolves a property path to a qualified column reference,
// materializing joins for nested segments.
func (cc *compileContext) columnFor(path string) (string, error) {
	chain, err := cc.criteria.typ.GetField(path, cc.criteria.resolver)
	if err != nil {
		return "", err
	}
	if chain.Terminal.DataType.IsCollection() {
		return "", fmt.Errorf("%w: %s", ErrCollectionRestriction, path)
	}
	refPath := ""
	if idx := strings.LastIndexByte(path, '.'); idx >= 0 {
		refPath = path[:idx]
	}
	alias, err := cc.aliasFor(refPath)
	if err != nil {
		return "", err
	}
	return alias + "." + chain.Terminal.DBColumn(), nil
}

func toColumn(apiName string) string {
	f := &types.Field{APIName: apiName}
	return f.DBColumn()
}

// SetReadFilter installs a per-join access filter. Used by the access control
// layer; the filter SQL is engine-built, never user input.
func (c *Criteria) SetReadFilter(f func(t *types.Type, alias string) string) *Criteria {
	c.readFilter = f
	return c
}

// Compile translates the criteria into an executable SELECT query.
func (c *Criteria) Compile() (*SelectQuery, error) {
	return c.compile(c.readFilter)
}

// BuildFromCriteria compiles a criteria after appending extra nested
// properties requested by the caller.
func BuildFromCriteria(c *Criteria, extraNestedProps []string) (*SelectQuery, error) {
	for _, p := range extraNestedProps {
		c.AddProperty(p)
	}
	return c.Compile()
}

func (c *Criteria) compile(joinFilter func(t *types.Type, alias string) string) (*SelectQuery, error) {
	cc := newCompileContext(c)
	cc.joinFilter = joinFilter
	grouped := c.IsGrouped()

	groupBySet := make(map[string]bool, len(c.groupBy))
	for _, g := range c.groupBy {
		groupBySet[g] = true
	}

	// assemble the select list: group-by columns first, then the requested
	// properties
	var cols []selectCol
	var collections []collectionProp
	seen := make(map[string]bool)

	addCol := func(p property) error {
		if seen[p.label()] {
			return nil
		}
		chain, err := c.typ.GetField(p.path, c.resolver)
		if err != nil {
			return err
		}
		terminal := chain.Terminal
		if len(chain.Refs) > 0 && chain.Refs[0].DataType.IsCollection() {
			if p.aggregate != "" || len(chain.Refs) > 1 {
				return fmt.Errorf("%w: %s", ErrCollectionRestriction, p.path)
			}
			collections = append(collections, collectionProp{
				field:   chain.Refs[0],
				subPath: strings.TrimPrefix(p.path, chain.Refs[0].APIName+"."),
			})
			seen[p.label()] = true
			return nil
		}
		if p.aggregate == "" {
			if terminal.DataType.Kind == types.KindTypeReference && p.path == terminal.APIName && len(chain.Refs) == 0 {
				return fmt.Errorf("%w: %q without a subfield (e.g. %q)", ErrWholeRelationship, p.path, p.path+".id")
			}
			if terminal.DataType.IsCollection() {
				if len(chain.Refs) > 0 {
					return fmt.Errorf("%w: nested collection path %s", ErrCollectionRestriction, p.path)
				}
				collections = append(collections, collectionProp{field: terminal})
				seen[p.label()] = true
				return nil
			}
			if grouped && !groupBySet[p.path] {
				return fmt.Errorf("%w: %s", ErrNotGrouped, p.path)
			}
		}
		col := selectCol{
			label:     p.label(),
			path:      p.path,
			aggregate: p.aggregate,
			chain:     chain,
			sqlAlias:  fmt.Sprintf("c%d", len(cols)),
		}
		cols = append(cols, col)
		seen[p.label()] = true
		return nil
	}

	for _, g := range c.groupBy {
		if err := addCol(property{path: g}); err != nil {
			return nil, err
		}
	}
	for _, p := range c.properties {
		if err := addCol(p); err != nil {
			return nil, err
		}
	}
	if len(cols) == 0 && len(collections) == 0 {
		return nil, fmt.Errorf("criteria for type %s selects no properties", c.typ.QualifiedName())
	}
	if len(collections) > 0 && grouped {
		return nil, fmt.Errorf("%w: collections cannot be combined with group by", ErrCollectionRestriction)
	}

	// render WHERE before SELECT so restriction-only paths also create joins
	var where string
	if len(c.restrictions) > 0 {
		rendered, err := And(c.restrictions...).render(cc)
		if err != nil {
			return nil, err
		}
		where = rendered
	}

	selectParts := make([]string, 0, len(cols))
	for i := range cols {
		col := &cols[i]
		column, err := cc.columnFor(col.path)
		if err != nil {
			return nil, err
		}
		if col.aggregate != "" {
			selectParts = append(selectParts, fmt.Sprintf("%s(%s) AS %s", col.aggregate, column, col.sqlAlias))
		} else {
			selectParts = append(selectParts, fmt.Sprintf("%s AS %s", column, col.sqlAlias))
		}
	}

	var groupByParts []string
	for _, g := range c.groupBy {
		column, err := cc.columnFor(g)
		if err != nil {
			return nil, err
		}
		groupByParts = append(groupByParts, column)
	}

	var orderParts []string
	for _, o := range c.orderings {
		if grouped {
			// ordering must address a group-by column or an aggregate label
			target := ""
			for i := range cols {
				if cols[i].label == o.path {
					target = cols[i].sqlAlias
					break
				}
			}
			if target == "" {
				return nil, fmt.Errorf("%w: order by %s", ErrNotGrouped, o.path)
			}
			orderParts = append(orderParts, target+" "+o.dir.String())
			continue
		}
		column, err := cc.columnFor(o.path)
		if err != nil {
			return nil, err
		}
		orderParts = append(orderParts, column+" "+o.dir.String())
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if len(selectParts) == 0 {
		// collection-only criteria still needs the root ids
		b.WriteString(rootAlias + ".id AS c0")
	} else {
		b.WriteString(strings.Join(selectParts, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(c.typ.TableName())
	b.WriteString(" " + rootAlias)
	for _, j := range cc.joins {
		on := fmt.Sprintf("%s.%s = %s.id", j.parentAlias, j.parentColumn, j.alias)
		if j.extraOn != "" {
			on += " AND " + j.extraOn
		}
		b.WriteString(fmt.Sprintf(" %s JOIN %s %s ON %s", j.joinType, j.table, j.alias, on))
	}
	if where != "" {
		b.WriteString(" WHERE " + where)
	}
	if len(groupByParts) > 0 {
		b.WriteString(" GROUP BY " + strings.Join(groupByParts, ", "))
	}
	if len(orderParts) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(orderParts, ", "))
	}
	if c.limit > 0 {
		b.WriteString(fmt.Sprintf(" LIMIT %d", c.limit))
	}
	if c.offset > 0 {
		b.WriteString(fmt.Sprintf(" OFFSET %d", c.offset))
	}

	return &SelectQuery{
		SQL:         b.String(),
		Columns:     cols,
		Collections: collections,
		Grouped:     grouped,
		Type:        c.typ,
	}, nil
}

// CompileCount translates the criteria into a COUNT query over the same
// restrictions and joins.
func (c *Criteria) CompileCount() (string, error) {
	cc := newCompileContext(c)
	cc.joinFilter = c.readFilter
	var where string
	if len(c.restrictions) > 0 {
		rendered, err := And(c.restrictions...).render(cc)
		if err != nil {
			return "", err
		}
		where = rendered
	}
	var b strings.Builder
	b.WriteString("SELECT COUNT(" + rootAlias + ".id) FROM ")
	b.WriteString(c.typ.TableName())
	b.WriteString(" " + rootAlias)
	for _, j := range cc.joins {
		on := fmt.Sprintf("%s.%s = %s.id", j.parentAlias, j.parentColumn, j.alias)
		if j.extraOn != "" {
			on += " AND " + j.extraOn
		}
		b.WriteString(fmt.Sprintf(" %s JOIN %s %s ON %s", j.joinType, j.table, j.alias, on))
	}
	if where != "" {
		b.WriteString(" WHERE " + where)
	}
	return b.String(), nil
}

// SortedAggregateLabels returns the aggregate labels of the compiled query in
// a stable order. Used by result rendering.
func (q *SelectQuery) SortedAggregateLabels() []string {
	var labels []string
	for _, c := range q.Columns {
		if c.aggregate != "" {
			labels = append(labels, c.label)
		}
	}
	sort.Strings(labels)
	return labels
}
