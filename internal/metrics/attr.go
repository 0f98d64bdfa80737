package metrics

import "go.opentelemetry.io/otel/attribute"

func attrString(key, value string) attribute.KeyValue { return attribute.String(key, value) }
func attrBool(key string, value bool) attribute.KeyValue { return attribute.Bool(key, value) }
