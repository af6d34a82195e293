package automod

import (
	"github.com/stride-social/modpipe/automod/classifier"
	"github.com/stride-social/modpipe/automod/content"
	"github.com/stride-social/modpipe/automod/engine"
	"github.com/stride-social/modpipe/automod/severity"
)

type Engine = engine.Engine
type EngineConfig = engine.EngineConfig
type Result = engine.Result
type ModeratedItem = engine.ModeratedItem
type Response = engine.Response

type RawContent = content.RawContent
type Candidate = content.Candidate

type Classifier = classifier.Classifier
type Verdict = classifier.Verdict
type ProviderConfig = classifier.ProviderConfig

type SeverityLevel = severity.Level

var (
	TypePost   = content.TypePost
	TypeStride = content.TypeStride

	LevelSafe   = severity.LevelSafe
	LevelLow    = severity.LevelLow
	LevelMedium = severity.LevelMedium
	LevelHigh   = severity.LevelHigh

	ErrSourceUnavailable         = engine.ErrSourceUnavailable
	ErrClassificationUnavailable = classifier.ErrClassificationUnavailable
)
