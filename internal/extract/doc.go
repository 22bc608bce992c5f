// Package extract pulls the template fragment and the essay content out of fetched HTML.
//
// Both modes parse the document with goquery. Template mode works on the plain-text
// rendering of the page, which is how a fragment typed into a word processor survives
// publishing: the markup the author typed shows up as text, bracketed by "@@@@" sentinels.
// Essay mode edits the parsed tree (anchors, scripts, header and footer containers) and
// returns the body's inner markup.
package extract
