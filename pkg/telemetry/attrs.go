package telemetry

import (
	"fmt"
	"maps"

	"go.opentelemetry.io/otel/attribute"
)

type SpanAttributes struct {
	ActionCategory string

	benchmark  optional[string] // eval.benchmark
	technique  optional[string] // eval.technique
	repetition optional[int]    // eval.repetition
	campaignID optional[string] // eval.campaign.id
	executions optional[int64]  // eval.campaign.executions
	corpusSize optional[int]    // eval.campaign.corpus_size
	failures   optional[int]    // eval.campaign.failures

	extraAttributes map[string]any
}

func NewSpanAttributes(actionCategory ActionCategory) *SpanAttributes {
	return &SpanAttributes{
		ActionCategory:  actionCategory.String(),
		extraAttributes: make(map[string]any),
	}
}

// EmptySpanAttributes has no action category; it is meant to be merged into
// an existing span.
func EmptySpanAttributes() *SpanAttributes {
	return &SpanAttributes{
		extraAttributes: make(map[string]any),
	}
}

// Merge copies values set in other that are not yet set here. The action
// category is always overwritten when other carries one.
func (o *SpanAttributes) Merge(other *SpanAttributes) {
	if other == nil {
		return
	}

	if other.ActionCategory != "" {
		o.ActionCategory = other.ActionCategory
	}

	mergeOptional(&o.benchmark, &other.benchmark)
	mergeOptional(&o.technique, &other.technique)
	mergeOptional(&o.repetition, &other.repetition)
	mergeOptional(&o.campaignID, &other.campaignID)
	mergeOptional(&o.executions, &other.executions)
	mergeOptional(&o.corpusSize, &other.corpusSize)
	mergeOptional(&o.failures, &other.failures)

	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	for k, v := range other.extraAttributes {
		if _, exists := o.extraAttributes[k]; !exists {
			o.extraAttributes[k] = v
		}
	}
}

func (o *SpanAttributes) WithBenchmark(val string) *SpanAttributes {
	o.benchmark.Set(val)
	return o
}

func (o *SpanAttributes) WithTechnique(val string) *SpanAttributes {
	o.technique.Set(val)
	return o
}

func (o *SpanAttributes) WithRepetition(val int) *SpanAttributes {
	o.repetition.Set(val)
	return o
}

func (o *SpanAttributes) WithCampaignID(val string) *SpanAttributes {
	o.campaignID.Set(val)
	return o
}

func (o *SpanAttributes) WithExecutions(val int64) *SpanAttributes {
	o.executions.Set(val)
	return o
}

func (o *SpanAttributes) WithCorpusSize(val int) *SpanAttributes {
	o.corpusSize.Set(val)
	return o
}

func (o *SpanAttributes) WithFailures(val int) *SpanAttributes {
	o.failures.Set(val)
	return o
}

func (o *SpanAttributes) WithExtraAttribute(key string, val any) *SpanAttributes {
	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	o.extraAttributes[key] = val
	return o
}

func (o *SpanAttributes) WithExtraAttributes(attrs map[string]any) *SpanAttributes {
	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	maps.Copy(o.extraAttributes, attrs)
	return o
}

func (o SpanAttributes) Attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	attrs = append(attrs, attribute.String("eval.action.category", o.ActionCategory))
	if o.benchmark.set {
		attrs = append(attrs, attribute.String("eval.benchmark", o.benchmark.val))
	}
	if o.technique.set {
		attrs = append(attrs, attribute.String("eval.technique", o.technique.val))
	}
	if o.repetition.set {
		attrs = append(attrs, attribute.Int("eval.repetition", o.repetition.val))
	}
	if o.campaignID.set {
		attrs = append(attrs, attribute.String("eval.campaign.id", o.campaignID.val))
	}
	if o.executions.set {
		attrs = append(attrs, attribute.Int64("eval.campaign.executions", o.executions.val))
	}
	if o.corpusSize.set {
		attrs = append(attrs, attribute.Int("eval.campaign.corpus_size", o.corpusSize.val))
	}
	if o.failures.set {
		attrs = append(attrs, attribute.Int("eval.campaign.failures", o.failures.val))
	}

	for k, v := range o.extraAttributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}

	return attrs
}

type EventAttributes []attribute.KeyValue

func NewEventAttributes(attributes map[string]string) EventAttributes {
	attrs := make(EventAttributes, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

type optional[T any] struct {
	val T
	set bool
}

func (o *optional[T]) Set(val T) { o.val = val; o.set = true }

func mergeOptional[T any](target, source *optional[T]) {
	if !target.set && source.set {
		target.val = source.val
		target.set = true
	}
}
