package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Field names of a paragraph document.
const (
	fieldBookID    = "book_id"
	fieldTitle     = "title"
	fieldText      = "text"
	fieldParagraph = "paragraph"
	fieldStart     = "start"
)

// buildIndexMapping maps one paragraph per document. Text uses the standard
// analyzer since books come in any language.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = standard.Name

	docMapping := bleve.NewDocumentMapping()

	bookID := bleve.NewTextFieldMapping()
	bookID.Analyzer = keyword.Name
	bookID.Store = true
	docMapping.AddFieldMappingsAt(fieldBookID, bookID)

	title := bleve.NewTextFieldMapping()
	title.Analyzer = keyword.Name
	title.Store = true
	title.Index = false
	docMapping.AddFieldMappingsAt(fieldTitle, title)

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	text.Store = true
	text.IncludeTermVectors = true // highlighting
	docMapping.AddFieldMappingsAt(fieldText, text)

	paragraph := bleve.NewNumericFieldMapping()
	paragraph.Store = true
	docMapping.AddFieldMappingsAt(fieldParagraph, paragraph)

	start := bleve.NewNumericFieldMapping()
	start.Store = true
	docMapping.AddFieldMappingsAt(fieldStart, start)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}
