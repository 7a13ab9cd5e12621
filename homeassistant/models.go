package homeassistant

type device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
}

type fanConfiguration struct {
	UniqueId               string   `json:"unique_id"`
	Name                   string   `json:"name"`
	StateTopic             string   `json:"state_topic"`
	CommandTopic           string   `json:"command_topic"`
	PresetModeStateTopic   string   `json:"preset_mode_state_topic,omitempty"`
	PresetModeCommandTopic string   `json:"preset_mode_command_topic,omitempty"`
	PresetModes            []string `json:"preset_modes,omitempty"`
	Device                 device   `json:"device"`
}

type climateConfiguration struct {
	UniqueId                   string   `json:"unique_id"`
	Name                       string   `json:"name"`
	Modes                      []string `json:"modes"`
	ModeStateTopic             string   `json:"mode_state_topic"`
	ModeStateTemplate          string   `json:"mode_state_template"`
	ModeCommandTopic           string   `json:"mode_command_topic"`
	TemperatureStateTopic      string   `json:"temperature_state_topic"`
	TemperatureStateTemplate   string   `json:"temperature_state_template"`
	TemperatureCommandTopic    string   `json:"temperature_command_topic"`
	CurrentTemperatureTopic    string   `json:"current_temperature_topic"`
	CurrentTemperatureTemplate string   `json:"current_temperature_template"`
	PresetModes                []string `json:"preset_modes,omitempty"`
	PresetModeStateTopic       string   `json:"preset_mode_state_topic,omitempty"`
	PresetModeValueTemplate    string   `json:"preset_mode_value_template,omitempty"`
	PresetModeCommandTopic     string   `json:"preset_mode_command_topic,omitempty"`
	MinTemp                    float64  `json:"min_temp"`
	MaxTemp                    float64  `json:"max_temp"`
	TempStep                   float64  `json:"temp_step"`
	TemperatureUnit            string   `json:"temperature_unit"`
	Device                     device   `json:"device"`
}
