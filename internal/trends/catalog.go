package trends

// Model describes a trending AI model and how it could be applied
type Model struct {
	Name           string `json:"name"`
	Provider       string `json:"provider"`
	UseCase        string `json:"use_case"`
	Availability   string `json:"availability"`
	Priority       string `json:"priority"`
	Implementation string `json:"implementation"`
}

// Framework describes a trending AI framework or library
type Framework struct {
	Name           string `json:"name"`
	Category       string `json:"category"`
	Priority       string `json:"priority"`
	UseCase        string `json:"use_case"`
	Implementation string `json:"implementation"`
}

// Technique describes a trending AI technique or pattern
type Technique struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Priority       string `json:"priority"`
	Implementation string `json:"implementation"`
}

// Tool describes a trending AI development tool
type Tool struct {
	Name           string `json:"name"`
	Category       string `json:"category"`
	Description    string `json:"description"`
	Priority       string `json:"priority"`
	Implementation string `json:"implementation"`
}

// UseCase describes a trending AI application category
type UseCase struct {
	Name           string `json:"name"`
	MarketSize     string `json:"market_size"`
	Competition    string `json:"competition"`
	Opportunity    string `json:"opportunity"`
	Implementation string `json:"implementation"`
}

// Catalog holds the categorized trend entries
type Catalog struct {
	Models     []Model     `json:"models"`
	Frameworks []Framework `json:"frameworks"`
	Techniques []Technique `json:"techniques"`
	Tools      []Tool      `json:"tools"`
	UseCases   []UseCase   `json:"use_cases"`
}

// curatedCatalog returns the current curated trend list.
// In production this would be refreshed from Hugging Face, arXiv and
// similar sources.
func curatedCatalog() Catalog {
	return Catalog{
		Models: []Model{
			{
				Name:           "Llama 3.3 70B",
				Provider:       "Meta",
				UseCase:        "General purpose, coding, reasoning",
				Availability:   "Open source, Groq API",
				Priority:       "High",
				Implementation: "Strong default for self-hosted AI features",
			},
			{
				Name:           "GPT-4 Turbo",
				Provider:       "OpenAI",
				UseCase:        "Advanced reasoning, multimodal",
				Availability:   "API",
				Priority:       "Medium",
				Implementation: "Consider for complex analysis tasks",
			},
			{
				Name:           "Claude 3.5 Sonnet",
				Provider:       "Anthropic",
				UseCase:        "Long context, coding",
				Availability:   "API",
				Priority:       "Medium",
				Implementation: "Alternative for code review features",
			},
			{
				Name:           "Qwen2.5-Coder",
				Provider:       "Alibaba",
				UseCase:        "Code generation",
				Availability:   "Open source, Ollama",
				Priority:       "High",
				Implementation: "Excellent for local coding tasks",
			},
			{
				Name:           "Gemini 2.0 Flash",
				Provider:       "Google",
				UseCase:        "Fast inference, multimodal",
				Availability:   "Free API",
				Priority:       "High",
				Implementation: "Good for rapid prototyping",
			},
		},
		Frameworks: []Framework{
			{
				Name:           "LangChain",
				Category:       "LLM Orchestration",
				Priority:       "High",
				UseCase:        "Building AI agents and chains",
				Implementation: "Standard choice for agent pipelines",
			},
			{
				Name:           "CrewAI",
				Category:       "Multi-Agent",
				Priority:       "High",
				UseCase:        "Role-based agent collaboration",
				Implementation: "Fits products with multi-step automation",
			},
			{
				Name:           "AutoGen",
				Category:       "Multi-Agent",
				Priority:       "Medium",
				UseCase:        "Conversational agents",
				Implementation: "Alternative for chat-based workflows",
			},
			{
				Name:           "LlamaIndex",
				Category:       "RAG",
				Priority:       "High",
				UseCase:        "Document indexing and retrieval",
				Implementation: "Add for knowledge base integration",
			},
			{
				Name:           "Vercel AI SDK",
				Category:       "Frontend AI",
				Priority:       "High",
				UseCase:        "Streaming AI responses in web apps",
				Implementation: "Use for SaaS products with chat interfaces",
			},
		},
		Techniques: []Technique{
			{
				Name:           "Agentic Workflows",
				Description:    "AI agents that can plan, execute, and iterate",
				Priority:       "Critical",
				Implementation: "Core pattern for process automation",
			},
			{
				Name:           "RAG (Retrieval Augmented Generation)",
				Description:    "Enhance LLMs with external knowledge",
				Priority:       "High",
				Implementation: "Add to repositories for documentation search",
			},
			{
				Name:           "Function Calling",
				Description:    "LLMs calling external tools and APIs",
				Priority:       "High",
				Implementation: "Needed for any tool-using integration",
			},
			{
				Name:           "Prompt Caching",
				Description:    "Cache prompts to reduce costs and latency",
				Priority:       "Medium",
				Implementation: "Implement for repeated operations",
			},
			{
				Name:           "Structured Outputs",
				Description:    "Force LLMs to output valid JSON/schemas",
				Priority:       "High",
				Implementation: "Use for reliable data extraction",
			},
		},
		Tools: []Tool{
			{
				Name:           "Cursor",
				Category:       "IDE",
				Description:    "AI-first code editor",
				Priority:       "High",
				Implementation: "Recommend for development workflow",
			},
			{
				Name:           "v0.dev",
				Category:       "UI Generation",
				Description:    "AI-powered UI component generation",
				Priority:       "High",
				Implementation: "Use for rapid frontend prototyping",
			},
			{
				Name:           "Supabase",
				Category:       "Backend",
				Description:    "Open source Firebase alternative",
				Priority:       "Critical",
				Implementation: "Fast path to auth and storage for SaaS repos",
			},
			{
				Name:           "Replicate",
				Category:       "Model Hosting",
				Description:    "Run AI models via API",
				Priority:       "Medium",
				Implementation: "For image/video generation features",
			},
			{
				Name:           "Modal",
				Category:       "Serverless",
				Description:    "Serverless GPU compute",
				Priority:       "Medium",
				Implementation: "For ML model deployment",
			},
		},
		UseCases: []UseCase{
			{
				Name:           "AI Coding Assistants",
				MarketSize:     "Large",
				Competition:    "High",
				Opportunity:    "Niche specialization (e.g. specific frameworks)",
				Implementation: "Viable for developer-tool repositories",
			},
			{
				Name:           "AI-Powered SaaS",
				MarketSize:     "Massive",
				Competition:    "Medium",
				Opportunity:    "Add AI features to existing SaaS products",
				Implementation: "Highest-leverage upgrade for SaaS repos",
			},
			{
				Name:           "Autonomous Agents",
				MarketSize:     "Growing",
				Competition:    "Low",
				Opportunity:    "Business process automation",
				Implementation: "Strong fit for workflow and platform repos",
			},
			{
				Name:           "AI Content Generation",
				MarketSize:     "Large",
				Competition:    "Very High",
				Opportunity:    "Specialized content (e.g. technical docs)",
				Implementation: "Add to repositories for documentation",
			},
			{
				Name:           "Personalization Engines",
				MarketSize:     "Large",
				Competition:    "Medium",
				Opportunity:    "E-commerce product recommendations",
				Implementation: "Best fit for marketplace repositories",
			},
		},
	}
}
