package binxml

import "testing"

func TestRender_SplicesValueIntoChild(t *testing.T) {
	skeleton := &Skeleton{
		Root: Node{Kind: KindElement, Children: []Node{
			{Kind: KindElement, Name: "Event", Children: []Node{
				{Kind: KindSubstitution, SubIndex: 0, SubType: TypeUInt32},
			}},
		}},
		Substitutions: map[int][]PathStep{0: {{Index: 0}, {Index: 0}}},
	}
	subs := []Substitution{{Type: TypeUInt32, Value: Value{Type: TypeUInt32, U64: 7}}}

	out := Render(skeleton, subs)
	event := out.Children[0]
	if len(event.Children) != 1 || event.Children[0].Kind != KindText || event.Children[0].Text != "7" {
		t.Fatalf("rendered child = %+v", event.Children)
	}
}

func TestRender_OptionalNullBecomesEmptyText(t *testing.T) {
	skeleton := &Skeleton{
		Root: Node{Kind: KindElement, Children: []Node{
			{Kind: KindElement, Name: "Event", Children: []Node{
				{Kind: KindSubstitution, SubIndex: 0, SubType: TypeUInt32, Optional: true},
			}},
		}},
	}
	subs := []Substitution{{Type: TypeNull}}

	out := Render(skeleton, subs)
	event := out.Children[0]
	if len(event.Children) != 1 || event.Children[0].Kind != KindText || event.Children[0].Text != "" {
		t.Fatalf("expected single empty text node, got %+v", event.Children)
	}
}

func TestRender_SurplusSlotDiscardedSafely(t *testing.T) {
	skeleton := &Skeleton{
		Root: Node{Kind: KindElement, Children: []Node{
			{Kind: KindElement, Name: "Event", Children: []Node{
				{Kind: KindSubstitution, SubIndex: 5, SubType: TypeUInt32, Optional: true},
			}},
		}},
	}
	// Instantiation declares fewer slots than the skeleton references.
	subs := []Substitution{{Type: TypeUInt32, Value: Value{Type: TypeUInt32, U64: 1}}}

	out := Render(skeleton, subs)
	event := out.Children[0]
	if len(event.Children) != 1 || event.Children[0].Text != "" {
		t.Fatalf("expected placeholder rendered as empty text, got %+v", event.Children)
	}
}

func TestRender_SurplusSlotNonOptionalDropsChild(t *testing.T) {
	skeleton := &Skeleton{
		Root: Node{Kind: KindElement, Children: []Node{
			{Kind: KindElement, Name: "Event", Children: []Node{
				{Kind: KindSubstitution, SubIndex: 5, SubType: TypeUInt32, Optional: false},
			}},
		}},
	}
	subs := []Substitution{}

	out := Render(skeleton, subs)
	event := out.Children[0]
	if len(event.Children) != 0 {
		t.Fatalf("expected missing non-optional substitution to be dropped, got %+v", event.Children)
	}
}

func TestRender_FragmentSubstitutionSplicesNodes(t *testing.T) {
	skeleton := &Skeleton{
		Root: Node{Kind: KindElement, Children: []Node{
			{Kind: KindElement, Name: "Event", Children: []Node{
				{Kind: KindSubstitution, SubIndex: 0, SubType: TypeBinXmlFragment},
			}},
		}},
	}
	fragment := []Node{
		{Kind: KindElement, Name: "System"},
		{Kind: KindElement, Name: "EventData"},
	}
	subs := []Substitution{{Type: TypeBinXmlFragment, Fragment: fragment}}

	out := Render(skeleton, subs)
	event := out.Children[0]
	if len(event.Children) != 2 || event.Children[0].Name != "System" || event.Children[1].Name != "EventData" {
		t.Fatalf("expected spliced fragment nodes, got %+v", event.Children)
	}
}

func TestRender_AttributeSubstitution(t *testing.T) {
	skeleton := &Skeleton{
		Root: Node{Kind: KindElement, Children: []Node{
			{
				Kind: KindElement,
				Name: "Event",
				Attrs: []Attr{
					{Name: "Id", Value: Node{Kind: KindSubstitution, SubIndex: 0, SubType: TypeUInt32}},
				},
			},
		}},
	}
	subs := []Substitution{{Type: TypeUInt32, Value: Value{Type: TypeUInt32, U64: 99}}}

	out := Render(skeleton, subs)
	event := out.Children[0]
	if event.Attrs[0].Value.Text != "99" {
		t.Fatalf("attr value = %+v", event.Attrs[0].Value)
	}
}

func TestRender_DoesNotMutateSkeleton(t *testing.T) {
	skeleton := &Skeleton{
		Root: Node{Kind: KindElement, Children: []Node{
			{Kind: KindElement, Name: "Event", Children: []Node{
				{Kind: KindSubstitution, SubIndex: 0, SubType: TypeUInt32},
			}},
		}},
	}
	subs := []Substitution{{Type: TypeUInt32, Value: Value{Type: TypeUInt32, U64: 1}}}

	Render(skeleton, subs)

	if skeleton.Root.Children[0].Children[0].Kind != KindSubstitution {
		t.Fatal("Render must not mutate the cached skeleton")
	}
}
