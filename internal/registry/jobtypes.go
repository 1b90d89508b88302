// Copyright 2025 James Ross
package registry

// Default is the process-wide registry built-in job types register
// themselves against in init(). cmd/orchestrator calls Default().Start()
// once wiring is complete, before any worker begins claiming jobs.
var defaultRegistry = New()

// Default returns the process-wide job type registry.
func Default() *Registry {
	return defaultRegistry
}

// interrogation keys name the prompt/schema contract a job type implements,
// versioned independently of the job type's display name.
const (
	InterrogationPageClassification  = "page_classification_v1"
	InterrogationEntityFacts         = "sw_entity_facts_v1"
	InterrogationRelationExtraction  = "relationship_extraction_v1"
)

func init() {
	_ = defaultRegistry.Register(JobTypeDefinition{
		JobType:          "page_classification",
		DisplayName:      "Page Classification",
		InterrogationKey: InterrogationPageClassification,
		HandlerRef:       "page_classification",
		MaxAttempts:      3,
		DefaultPriority:  100,
		TimeoutSeconds:   300,
		Version:          "v1",
		Description:      "Classifies a source page into a coarse topical category.",
		Tags:             []string{"classification"},
	})
	_ = defaultRegistry.Register(JobTypeDefinition{
		JobType:          "sw_entity_facts",
		DisplayName:      "Structured Entity Facts Extraction",
		InterrogationKey: InterrogationEntityFacts,
		HandlerRef:       "sw_entity_facts",
		MaxAttempts:      3,
		DefaultPriority:  100,
		TimeoutSeconds:   300,
		Version:          "v1",
		Description:      "Extracts structured facts about a named entity from evidence text.",
		Tags:             []string{"extraction"},
	})
	_ = defaultRegistry.Register(JobTypeDefinition{
		JobType:          "relationship_extraction",
		DisplayName:      "Entity Relationship Extraction",
		InterrogationKey: InterrogationRelationExtraction,
		HandlerRef:       "relationship_extraction",
		MaxAttempts:      3,
		DefaultPriority:  100,
		TimeoutSeconds:   300,
		Version:          "v1",
		Description:      "Extracts typed relationships between two previously identified entities.",
		Tags:             []string{"extraction", "relations"},
	})
}

// InferJobType maps an interrogation_key like "page_classification_v1" to
// its base job type "page_classification" by trimming a trailing "_vN"
// version suffix; unversioned or unrecognized keys pass through unchanged.
func InferJobType(interrogationKey string) string {
	i := len(interrogationKey)
	for i > 0 && interrogationKey[i-1] >= '0' && interrogationKey[i-1] <= '9' {
		i--
	}
	if i > 1 && i < len(interrogationKey) && interrogationKey[i-1] == 'v' && i >= 2 && interrogationKey[i-2] == '_' {
		return interrogationKey[:i-2]
	}
	return interrogationKey
}
