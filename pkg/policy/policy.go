// Package policy builds and evaluates the queue access policy that lets a
// topic deliver into a queue.
package policy

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	Version = "2012-10-17"

	EffectAllow = "Allow"
	EffectDeny  = "Deny"

	// ActionSendMessage is the permission a topic needs on a subscribed queue.
	ActionSendMessage = "sqs:SendMessage"

	// ConditionArnEquals with KeySourceArn restricts a grant to one sender.
	ConditionArnEquals = "ArnEquals"
	KeySourceArn       = "aws:SourceArn"

	// TopicServicePrincipal is the service principal topics deliver as.
	TopicServicePrincipal = "sns.amazonaws.com"
)

// Document is an access policy document.
type Document struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Statement is one grant or denial inside a Document.
type Statement struct {
	Sid       string                       `json:"Sid,omitempty"`
	Effect    string                       `json:"Effect"`
	Principal map[string]string            `json:"Principal,omitempty"`
	Action    string                       `json:"Action"`
	Resource  string                       `json:"Resource"`
	Condition map[string]map[string]string `json:"Condition,omitempty"`
}

// TopicToQueue grants send permission on queueArn to the topic topicArn only.
func TopicToQueue(queueArn, topicArn string) Document {
	return Grant(queueArn, topicArn, ActionSendMessage)
}

// Grant allows the topic service to perform action on resourceArn when the
// request comes from sourceArn.
func Grant(resourceArn, sourceArn, action string) Document {
	return Document{
		Version: Version,
		Statement: []Statement{{
			Sid:       "Allow-SNS-" + strings.ReplaceAll(strings.TrimPrefix(action, "sqs:"), ":", "-"),
			Effect:    EffectAllow,
			Principal: map[string]string{"Service": TopicServicePrincipal},
			Action:    action,
			Resource:  resourceArn,
			Condition: map[string]map[string]string{
				ConditionArnEquals: {KeySourceArn: sourceArn},
			},
		}},
	}
}

// String renders the document as compact JSON.
func (d Document) String() string {
	data, err := json.Marshal(d)
	if err != nil {
		// Every field is a string or a map of strings.
		panic(fmt.Sprintf("policy: marshal document: %v", err))
	}
	return string(data)
}

// Parse decodes a JSON policy document.
func Parse(raw string) (Document, error) {
	var d Document
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Document{}, fmt.Errorf("parse policy: %w", err)
	}
	return d, nil
}

// SourceArn returns the sender a statement is conditioned on, if any.
func (s Statement) SourceArn() (string, bool) {
	arn, ok := s.Condition[ConditionArnEquals][KeySourceArn]
	return arn, ok && arn != ""
}

// AllowedSources returns every sender granted action on resource through a
// conditional Allow. Unconditional grants are ignored and a Deny naming the
// same sender wins over any Allow.
func (d Document) AllowedSources(action, resource string) []string {
	denied := make(map[string]bool)
	for _, s := range d.matching(action, resource) {
		if arn, ok := s.SourceArn(); ok && s.Effect == EffectDeny {
			denied[arn] = true
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, s := range d.matching(action, resource) {
		arn, ok := s.SourceArn()
		if !ok || s.Effect != EffectAllow || denied[arn] || seen[arn] {
			continue
		}
		seen[arn] = true
		out = append(out, arn)
	}
	return out
}

// Allows reports whether sourceArn may perform action on resource.
func (d Document) Allows(action, resource, sourceArn string) bool {
	for _, arn := range d.AllowedSources(action, resource) {
		if arn == sourceArn {
			return true
		}
	}
	return false
}

func (d Document) matching(action, resource string) []Statement {
	var out []Statement
	for _, s := range d.Statement {
		if s.Action == action && s.Resource == resource {
			out = append(out, s)
		}
	}
	return out
}
