package repositorycache

import "github.com/goliatone/go-repository-indexcache/cache"

// Relation declares an entity embedded in loaded records of another entity.
// When a record is cached, each embedded entity receives a back-reference so
// that mutating it later evicts the record that embedded it.
type Relation struct {
	// Entity is the entity type of the embedded record.
	Entity string
	// As is the dotted path of the embedded value inside the parent record.
	As string
	// Many marks a one-to-many relation whose value is a slice of records.
	Many bool
	// Relations are walked inside each embedded record.
	Relations []Relation
}

// Reference declares a foreign key field pointing at another entity. Writing
// a record evicts the referenced entity's cache entry, e.g. an order write
// clears the cached customer whose orders list is now stale.
type Reference struct {
	Entity string
	Field  string
}

// backRef is the value stored in relation lists.
type backRef struct {
	Entity string
	ID     any
}

func (b backRef) value() map[string]any {
	return map[string]any{"entity": b.Entity, "id": b.ID}
}

func (b backRef) same(other backRef) bool {
	return b.Entity == other.Entity && cache.SameValue(b.ID, other.ID)
}

func parseBackRef(v any) (backRef, bool) {
	m, ok := asMap(v)
	if !ok {
		return backRef{}, false
	}
	entity, _ := m["entity"].(string)
	id := m["id"]
	if entity == "" || id == nil {
		return backRef{}, false
	}
	return backRef{Entity: entity, ID: id}, true
}

// walkRelations calls visit for every embedded record reachable through
// relations, depth first, in declaration order.
func walkRelations(record map[string]any, relations []Relation, visit func(rel Relation, embedded Record) error) error {
	for _, rel := range relations {
		value, ok := valueAt(record, rel.As)
		if !ok || value == nil {
			continue
		}

		for _, embedded := range embeddedRecords(value, rel.Many) {
			if err := visit(rel, embedded); err != nil {
				return err
			}
			if err := walkRelations(embedded, rel.Relations, visit); err != nil {
				return err
			}
		}
	}
	return nil
}

func embeddedRecords(value any, many bool) []Record {
	if !many {
		if r, ok := asRecord(value); ok {
			return []Record{r}
		}
		return nil
	}

	items, ok := asSlice(value)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(items))
	for _, item := range items {
		if r, ok := asRecord(item); ok {
			out = append(out, r)
		}
	}
	return out
}

func validateRelations(entity string, relations []Relation) error {
	for _, rel := range relations {
		if rel.Entity == "" {
			return invalidRelationError(entity, "relation entity is empty")
		}
		if rel.As == "" {
			return invalidRelationError(entity, "relation path is empty for "+rel.Entity)
		}
		if err := validateRelations(rel.Entity, rel.Relations); err != nil {
			return err
		}
	}
	return nil
}

func cloneRelations(relations []Relation) []Relation {
	if relations == nil {
		return nil
	}
	out := make([]Relation, len(relations))
	for i, rel := range relations {
		out[i] = rel
		out[i].Relations = cloneRelations(rel.Relations)
	}
	return out
}
