package domain

// ToolRef — ссылка на инструмент, которым агент собирается воспользоваться.
type ToolRef struct {
	Name   string `json:"name"`
	Action string `json:"action"`
}

// TurnContext — типизированный контекст входящего хода.
// Заменяет свободное прощупывание ключей: вместо произвольной мапы —
// явные поля с фиксированным порядком извлечения действия.
type TurnContext struct {
	Action string         `json:"action"`
	Tool   ToolRef        `json:"tool"`
	Intent string         `json:"intent"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// toolActionTable маппит известные имена инструментов на вид действия.
var toolActionTable = map[string]ActionKind{
	"read_file":  ActionFileRead,
	"write_file": ActionFileWrite,
	"fetch_url":  ActionWebFetch,
	"web_search": ActionWebFetch,
	"send_email": ActionEmailSend,
}

// CandidateAction извлекает кандидата по фиксированному приоритету:
// явный action -> tool.action -> tool.name через таблицу -> intent -> "".
// Побеждает первое непустое совпадение.
func (c TurnContext) CandidateAction() ActionKind {
	if c.Action != "" {
		return ActionKind(c.Action)
	}
	if c.Tool.Action != "" {
		return ActionKind(c.Tool.Action)
	}
	if kind, ok := toolActionTable[c.Tool.Name]; ok {
		return kind
	}
	if c.Intent != "" {
		return ActionKind(c.Intent)
	}
	return ""
}

// Snapshot возвращает контекст в виде плоской мапы для заявки на согласие.
func (c TurnContext) Snapshot() map[string]any {
	snap := make(map[string]any, len(c.Extra)+3)
	for k, v := range c.Extra {
		snap[k] = v
	}
	if c.Action != "" {
		snap["action"] = c.Action
	}
	if c.Tool.Name != "" || c.Tool.Action != "" {
		snap["tool"] = map[string]any{"name": c.Tool.Name, "action": c.Tool.Action}
	}
	if c.Intent != "" {
		snap["intent"] = c.Intent
	}
	return snap
}

// TurnRequest — один ход пользователя через шлюз.
type TurnRequest struct {
	UserInput   string      `json:"user_input"`
	Context     TurnContext `json:"context"`
	AgentStatus string      `json:"agent_status,omitempty"`
	UserID      string      `json:"user_id"`
}

// TurnResult — исход хода: либо запрос согласия, либо нормализованный ответ.
type TurnResult struct {
	Prompt   *ConsentPrompt `json:"prompt,omitempty"`
	Response any            `json:"response,omitempty"`
}
