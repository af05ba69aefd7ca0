// Package model defines the provider-agnostic contract between the turn
// executor and language model providers.
//
// A Model turns a Request (role based contents plus tool declarations) into a
// single Response carrying text and/or function calls. Provider adapters live
// in sub packages (openai, anthropic, gemini) so the orchestration packages
// never import a vendor SDK. Registry maps core.ModelConfig.Provider to an
// adapter factory, and ScriptedModel replays canned responses in tests.
package model
