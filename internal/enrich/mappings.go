package enrich

const itemsMapping = `
{
    "properties": {
        "title_analyzed": {
            "type": "string",
            "index": "analyzed"
        }
    }
}`

// ElasticMappings returns the index mapping declarations keyed by document type.
func (e *Enricher) ElasticMappings() map[string]string {
	return map[string]string{"items": itemsMapping}
}
