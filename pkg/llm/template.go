package llm

import "fmt"

// TemplateDescribe produces the deterministic fallback description used
// when the LLM adapter fails for a candidate; rows built this way carry
// description_source = template.
func TemplateDescribe(brief Brief) string {
	switch brief.Kind {
	case "time_of_day":
		return fmt.Sprintf("Automate %s based on its recurring activation pattern.", brief.Anchor)
	case "co_occurrence":
		return fmt.Sprintf("Automate %s to follow %s, based on how often they activate together.", brief.Anchor, firstDevice(brief.Devices))
	case "anomaly":
		return fmt.Sprintf("Consider automating the recurring manual override seen on %s.", brief.Anchor)
	case "device_pair", "device_chain":
		return fmt.Sprintf("Chain %v together based on how often they activate in sequence.", brief.Devices)
	case "weather_context", "energy_context", "event_context":
		return fmt.Sprintf("Automate %s based on its observed dependence on external conditions.", brief.Anchor)
	case "feature":
		return fmt.Sprintf("%s has an underused capability you may want to put to work.", brief.Anchor)
	default:
		return fmt.Sprintf("A new automation opportunity was found for %s.", brief.Anchor)
	}
}

func firstDevice(devices []string) string {
	if len(devices) == 0 {
		return "a related device"
	}
	return devices[0]
}
